package runtime

import (
	"fmt"

	"golang.org/x/sync/errgroup"
)

// LoadMany loads every item independently. Items that fail are logged and
// left out; they never stop the rest of the batch. Results are merged in
// input order, so a later workflow with the same name replaces an earlier one.
func (l *Loader) LoadMany(items []RawDefinition) map[string]*Workflow {
	loaded := make([]*Workflow, len(items))

	var g errgroup.Group
	g.SetLimit(l.concurrency)
	for i, item := range items {
		g.Go(func() error {
			w, err := l.Load(item.Text, item.Locator)
			if err != nil {
				l.l.Error(fmt.Sprintf("Skipping workflow definition: %s", item.Locator),
					"locator", item.Locator,
					"error", err)
				return nil
			}
			loaded[i] = w
			return nil
		})
	}
	_ = g.Wait()

	result := make(map[string]*Workflow, len(items))
	for _, w := range loaded {
		if w == nil {
			continue
		}
		if prev, ok := result[w.Name]; ok {
			l.l.Warn(fmt.Sprintf("Workflow %s redefined", w.Name),
				"previous", prev.SourceLocator,
				"locator", w.SourceLocator)
		}
		result[w.Name] = w
	}
	return result
}
