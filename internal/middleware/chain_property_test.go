//go:build property

package middleware

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/conneroisu/velto/internal/web"
)

// TestChainOrderProperties checks onion ordering for any chain length.
func TestChainOrderProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.Rng.Seed(1234)
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("request side follows registration, response side reverses it", prop.ForAll(
		func(n int) bool {
			rec := &recorder{}
			chain := NewChain()
			for i := 0; i < n; i++ {
				chain.Add(rec.tracing(fmt.Sprint(i)))
			}
			handler := chain.Wrap(web.HandlerFunc(func(*web.Request) *web.Response {
				rec.add("H")
				return web.Text("ok")
			}))
			handler.Handle(newRequest())

			want := make([]string, 0, 2*n+1)
			for i := 0; i < n; i++ {
				want = append(want, fmt.Sprint(i)+":request")
			}
			want = append(want, "H")
			for i := n - 1; i >= 0; i-- {
				want = append(want, fmt.Sprint(i)+":response")
			}

			if len(rec.steps) != len(want) {
				return false
			}
			for i := range want {
				if rec.steps[i] != want[i] {
					return false
				}
			}
			return true
		},
		gen.IntRange(0, 20),
	))

	properties.Property("a short-circuit at position k hides everything after it", prop.ForAll(
		func(n, k int) bool {
			if k >= n {
				k = n - 1
			}
			rec := &recorder{}
			chain := NewChain()
			for i := 0; i < n; i++ {
				if i == k {
					chain.Add(func(*web.Request, web.Next) *web.Response {
						rec.add("stop")
						return web.Empty(204)
					})
					continue
				}
				chain.Add(rec.tracing(fmt.Sprint(i)))
			}
			res := chain.Wrap(web.HandlerFunc(func(*web.Request) *web.Response {
				rec.add("H")
				return web.Text("ok")
			})).Handle(newRequest())

			return res.Status == 204 && len(rec.steps) == 2*k+1 && rec.steps[k] == "stop"
		},
		gen.IntRange(1, 10),
		gen.IntRange(0, 9),
	))

	properties.TestingRun(t)
}
