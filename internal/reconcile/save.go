package reconcile

import (
	"context"

	"github.com/Iron-Ham/vimsaver/internal/appstate"
	"github.com/Iron-Ham/vimsaver/internal/logging"
	"github.com/Iron-Ham/vimsaver/internal/metrics"
	"github.com/Iron-Ham/vimsaver/internal/snapshot"
)

// Save captures the session. The snapshot reflects exactly one completed pass.
func (e *Engine) Save(ctx context.Context) (snapshot.Snapshot, *Report, error) {
	var saved snapshot.Snapshot

	report, err := e.run(ctx, metrics.OpSave, func() (action, func()) {
		local := snapshot.Snapshot{}
		extract := func(ctx context.Context, t target, inst appstate.Instance, log *logging.Logger) error {
			items, err := inst.ExtractItems(ctx)
			if err != nil {
				return err
			}
			if items == nil {
				items = []snapshot.WorkspaceItem{}
			}

			w, ok := local[t.window]
			if !ok {
				w = &snapshot.WindowState{
					WorkDir: t.proc.WorkDir,
					App:     t.rec.Name(),
					Title:   inst.Identity(),
					Buffers: map[string][]snapshot.WorkspaceItem{},
				}
				local[t.window] = w
			} else if w.App != t.rec.Name() {
				log.Warn("window already holds another application, merging anyway", "first", w.App)
			}
			w.Buffers[inst.Identity()] = items

			e.opts.Metrics.ItemsExtracted(len(items))
			log.Debug("extracted instance", "items", len(items))
			return nil
		}
		return extract, func() { saved = local }
	})
	if err != nil {
		return nil, report, err
	}
	return saved, report, nil
}
