package harvest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/MDM/internal/domain"
)

type recordObserver struct {
	mu sync.Mutex

	startCalls int
	phases     []string
	started    []string
	done       []int
	total      int
}

func (o *recordObserver) OnStart(Options) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.startCalls++
}

func (o *recordObserver) OnPhaseDone(name string, _ map[string]any, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.phases = append(o.phases, name)
}

func (o *recordObserver) OnItemStart(url string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started = append(o.started, url)
}

func (o *recordObserver) OnItemDone(idx, total int, _ domain.ItemResult, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.done = append(o.done, idx)
	o.total = total
}

func TestExecute_EmitsPhaseAndItemEvents(t *testing.T) {
	d := deps(t, newIngest(t), &loads{})
	list := writeList(t, d.FS, rarbgURL+"\n"+doubanURL+"\nhttps://example.com/x\n")

	obs := &recordObserver{}
	Execute(context.Background(), Options{Input: list, Server: "prod", Concurrency: 2}, d, obs)

	require.Equal(t, 1, obs.startCalls)
	require.Equal(t, []string{"scan", "group", "plan", "exec"}, obs.phases)
	require.ElementsMatch(t, []string{rarbgURL, doubanURL}, obs.started)
	require.Equal(t, []int{1, 2}, obs.done)
	require.Equal(t, 2, obs.total)
}
