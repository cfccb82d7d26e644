package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"bitcli.local/internal/app/shortlink"
	"bitcli.local/internal/platform/metrics"
	"golang.org/x/sync/semaphore"
)

// Shortener 是单个 URL 的缩短操作，*shortlink.Service 实现了它。
type Shortener interface {
	Shorten(ctx context.Context, longURL string) (shortlink.Bitlink, error)
}

// Ordering 决定结果的输出顺序。
type Ordering int

const (
	// Ordered：结果顺序和输入顺序一致
	Ordered Ordering = iota
	// Unordered：按完成顺序输出，结果里带着对应的输入 URL
	Unordered
)

func (o Ordering) String() string {
	switch o {
	case Ordered:
		return "ordered"
	case Unordered:
		return "unordered"
	default:
		return fmt.Sprintf("Ordering(%d)", int(o))
	}
}

func ParseOrdering(s string) (Ordering, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "ordered":
		return Ordered, nil
	case "unordered":
		return Unordered, nil
	default:
		return Ordered, fmt.Errorf("invalid ordering %q (want ordered or unordered)", s)
	}
}

// Item 是一条输入。Err 不为空时该条不会被缩短，错误原样作为它的结果输出。
type Item struct {
	URL string
	Err error
}

// Result 是一条输入对应的结果。Index 是输入里的位置（从 0 开始）。
type Result struct {
	Index   int
	URL     string
	Bitlink shortlink.Bitlink
	Err     error
}

type Options struct {
	MaxConcurrent int
	Ordering      Ordering
}

// Run 从 in 读取输入，最多同时执行 MaxConcurrent 个缩短操作，结果写到返回的 channel。
//
// - 只有拿到空闲名额之后才会从 in 读下一条，流式输入不会被一次性读进内存
// - 名额在结果被调用方取走之后才释放；Ordered 模式下缓冲区里等待前序结果的条目也占名额
// - 单条失败不会影响其他条目，也不会重试
//
// in 关闭且全部结果输出后，返回的 channel 被关闭。ctx 取消后停止调度，返回的 channel 尽快关闭。
func Run(ctx context.Context, s Shortener, in <-chan Item, opts Options) <-chan Result {
	n := opts.MaxConcurrent
	if n < 1 {
		n = 1
	}

	out := make(chan Result)
	// 未释放的名额最多 n 个，所以 done 不会阻塞 worker
	done := make(chan Result, n)
	sem := semaphore.NewWeighted(int64(n))

	go dispatch(ctx, s, in, sem, done)
	go collect(ctx, opts.Ordering, sem, done, out)

	return out
}

func dispatch(ctx context.Context, s Shortener, in <-chan Item, sem *semaphore.Weighted, done chan<- Result) {
	var wg sync.WaitGroup
	defer func() {
		wg.Wait()
		close(done)
	}()

	for index := 0; ; index++ {
		if ctx.Err() != nil {
			return
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			return
		}
		// Acquire 在 ctx 取消和名额释放同时发生时可能成功
		if ctx.Err() != nil {
			sem.Release(1)
			return
		}

		var item Item
		var ok bool
		select {
		case <-ctx.Done():
			sem.Release(1)
			return
		case item, ok = <-in:
		}
		if !ok {
			sem.Release(1)
			return
		}

		wg.Add(1)
		go func(index int, item Item) {
			defer wg.Done()
			done <- shortenOne(ctx, s, index, item)
		}(index, item)
	}
}

func shortenOne(ctx context.Context, s Shortener, index int, item Item) Result {
	res := Result{Index: index, URL: item.URL}
	if item.Err != nil {
		res.Err = item.Err
		return res
	}

	metrics.InflightShortens.Inc()
	defer metrics.InflightShortens.Dec()
	res.Bitlink, res.Err = s.Shorten(ctx, item.URL)
	return res
}

func collect(ctx context.Context, ordering Ordering, sem *semaphore.Weighted, done <-chan Result, out chan<- Result) {
	defer close(out)

	emit := func(r Result) bool {
		select {
		case out <- r:
			sem.Release(1)
			return true
		case <-ctx.Done():
			return false
		}
	}

	// 重排缓冲区：key 是输入下标
	pending := make(map[int]Result)
	next := 0
	stopped := false

	for r := range done {
		// ctx 取消后只排空 done，让 dispatch 能退出
		if stopped {
			continue
		}

		if ordering == Unordered {
			stopped = !emit(r)
			continue
		}

		pending[r.Index] = r
		for {
			p, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			next++
			if !emit(p) {
				stopped = true
				break
			}
		}
	}
}

// Collect 读出全部结果，主要给测试和一次性调用使用。
func Collect(results <-chan Result) []Result {
	var all []Result
	for r := range results {
		all = append(all, r)
	}
	return all
}
