//go:build property

package devmode

import (
	"sync"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestReloadPortWriteOnce checks that exactly one concurrent writer wins.
func TestReloadPortWriteOnce(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.Rng.Seed(35729)
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("one winner among concurrent writers", prop.ForAll(
		func(ports []int) bool {
			s := New(DefaultReloadPort)

			var (
				wg   sync.WaitGroup
				mu   sync.Mutex
				wins []int
			)
			for _, p := range ports {
				wg.Add(1)
				go func(p int) {
					defer wg.Done()
					if s.SetReloadPort(p) {
						mu.Lock()
						wins = append(wins, p)
						mu.Unlock()
					}
				}(p)
			}
			wg.Wait()

			if len(ports) == 0 {
				return len(wins) == 0 && s.ReloadPort() == DefaultReloadPort
			}
			return len(wins) == 1 && s.ReloadPort() == wins[0]
		},
		gen.SliceOf(gen.IntRange(1, 65535)),
	))

	properties.Property("invalid ports never win", prop.ForAll(
		func(n int) bool {
			p := n
			if n > 0 {
				p = 65535 + n
			}
			s := New(DefaultReloadPort)
			return !s.SetReloadPort(p) && s.ReloadPort() == DefaultReloadPort
		},
		gen.IntRange(-1000, 1000),
	))

	properties.TestingRun(t)
}
