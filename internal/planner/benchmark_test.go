package planner

import (
	"context"
	"testing"

	"github.com/git-pkgs/nuget/internal/core"
	"github.com/git-pkgs/nuget/internal/source"
)

// chain of packages, each depending on the next, so InstallOrder has an
// actual ordering problem to solve instead of a single node.
func buildChainSource(n int) *fakeSource {
	fs := newFakeSource()
	for i := 0; i < n; i++ {
		id := "pkg" + string(rune('A'+i))
		if i+1 < n {
			next := "pkg" + string(rune('A'+i+1))
			fs.add(id, "1.0.0", dep(next, "[1.0.0, )"))
		} else {
			fs.add(id, "1.0.0")
		}
	}
	return fs
}

func BenchmarkPlanner_InstallOrder(b *testing.B) {
	const n = 20
	fs := buildChainSource(n)
	gw := source.NewGateway(fs)
	p := New(NewDependencyGraph(gw, ""))

	ids := make([]core.Identity, n)
	for i := 0; i < n; i++ {
		ids[i] = identity("pkg"+string(rune('A'+i)), "1.0.0")
	}

	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = p.InstallOrder(ctx, ids)
	}
}

func BenchmarkPlanner_Plan(b *testing.B) {
	const n = 20
	fs := buildChainSource(n)
	gw := source.NewGateway(fs)
	p := New(NewDependencyGraph(gw, ""))

	resolved := make([]core.Identity, n)
	for i := 0; i < n; i++ {
		resolved[i] = identity("pkg"+string(rune('A'+i)), "1.0.0")
	}

	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = p.Plan(ctx, nil, resolved, nil, Options{})
	}
}
