package mfa

import "sync"

// forEach runs work(i) for i in [0, n) across up to workers goroutines,
// fork-join style: it blocks until every call has returned. A workers
// value <= 1 (or n <= 1) runs serially with no goroutine overhead, which
// is the required single-threaded fallback of section 5.
//
// Each call to work(i) must be independent of the others: forEach makes
// no ordering guarantee and the caller is responsible for giving each
// goroutine its own scratch state.
func forEach(n, workers int, work func(i int)) {
	if n <= 0 {
		return
	}
	if workers <= 1 || n == 1 {
		for i := 0; i < n; i++ {
			work(i)
		}
		return
	}
	if workers > n {
		workers = n
	}

	var wg sync.WaitGroup
	wg.Add(workers)
	chunk := (n + workers - 1) / workers
	for w := 0; w < workers; w++ {
		lo := w * chunk
		hi := lo + chunk
		if hi > n {
			hi = n
		}
		go func(lo, hi int) {
			defer wg.Done()
			for i := lo; i < hi; i++ {
				work(i)
			}
		}(lo, hi)
	}
	wg.Wait()
}
