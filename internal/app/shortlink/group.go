package shortlink

import "context"

// ResolveGroup 决定请求使用的分组 GUID。
//
// 顺序：
//  1. 配置文件/参数/环境变量给出的值，原样使用
//  2. 否则查询当前用户，用户未激活时无法推断默认分组
//
// 结果不在多次调用之间复用。
func ResolveGroup(ctx context.Context, remote Remote, configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}

	user, err := remote.FetchUser(ctx)
	if err != nil {
		return "", err
	}
	if !user.IsActive {
		return "", &UnresolvedGroupError{Reason: "user is inactive"}
	}
	if user.DefaultGroupGUID == "" {
		return "", &UnresolvedGroupError{Reason: "user has no default group"}
	}
	return user.DefaultGroupGUID, nil
}
