package pipeline

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"bitcli.local/internal/app/shortlink"
)

// FromURLs 把一组已经校验过的 URL 变成输入流。
func FromURLs(ctx context.Context, urls []string) <-chan Item {
	ch := make(chan Item)
	go func() {
		defer close(ch)
		for _, u := range urls {
			select {
			case ch <- Item{URL: u}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}

// FromReader 按行读取 URL（每行一个，去掉首尾空白，跳过空行）。
//
// 无法解析的行作为该条的错误输出，后续行继续读取；读取本身出错时输出一条错误并结束。
// 读取和调度是交替进行的：只有下游取走一条之后才会读下一行。
func FromReader(ctx context.Context, r io.Reader) <-chan Item {
	ch := make(chan Item)
	go func() {
		defer close(ch)

		send := func(item Item) bool {
			select {
			case ch <- item:
				return true
			case <-ctx.Done():
				return false
			}
		}

		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		line := 0
		for sc.Scan() {
			line++
			raw := strings.TrimSpace(sc.Text())
			if raw == "" {
				continue
			}
			u, err := shortlink.ParseLongURL(raw)
			if err != nil {
				if !send(Item{URL: raw, Err: fmt.Errorf("line %d: %w", line, err)}) {
					return
				}
				continue
			}
			if !send(Item{URL: u}) {
				return
			}
		}
		if err := sc.Err(); err != nil {
			send(Item{Err: fmt.Errorf("read input: %w", err)})
		}
	}()
	return ch
}
