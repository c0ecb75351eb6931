package relay

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"rowsync/internal/schema"
)

// LoadSeed reads a YAML seed file: a list of entities.
//
//	- name: John
//	  age: 20
//	  email: john@example.com
func LoadSeed(path string) ([]schema.Entity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}

	var entities []schema.Entity
	if err := yaml.Unmarshal(data, &entities); err != nil {
		return nil, fmt.Errorf("failed to parse seed file %s: %w", path, err)
	}
	for i := range entities {
		if err := entities[i].Validate(); err != nil {
			return nil, fmt.Errorf("invalid seed entity %d: %w", i, err)
		}
	}
	return entities, nil
}

// diffSeed computes the mutations that move the current table state to
// the seeded rows: adds for new keys, single edits carrying the changed
// fields for existing keys, deletes for keys no longer seeded.
func diffSeed(current map[string]schema.Entity, seeded []schema.Entity) []*schema.Mutation {
	var muts []*schema.Mutation
	want := make(map[string]schema.Entity, len(seeded))
	for _, e := range seeded {
		want[e.Name] = e
	}

	for _, e := range seeded {
		have, ok := current[e.Name]
		if !ok {
			muts = append(muts, schema.NewAdd(e))
			continue
		}
		if have == e {
			continue
		}
		changes := make(map[string]any)
		if have.Age != e.Age {
			changes[schema.FieldAge] = e.Age
		}
		if have.Email != e.Email {
			changes[schema.FieldEmail] = e.Email
		}
		muts = append(muts, &schema.Mutation{
			Type:       schema.TypeEdit,
			Key:        e.Name,
			RowChanges: changes,
		})
	}

	for key := range current {
		if _, ok := want[key]; !ok {
			muts = append(muts, schema.NewDelete(key))
		}
	}
	return muts
}

// watchSeed reloads the seed file whenever it changes and broadcasts
// the resulting diff. It watches the parent directory because most
// editors replace files by rename, which drops a watch placed on the
// file itself.
func (s *Server) watchSeed(path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create seed watcher: %w", err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		watcher.Close()
		return fmt.Errorf("failed to resolve seed path: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch seed directory: %w", err)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer watcher.Close()

		for {
			select {
			case <-s.ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != abs {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				// Editors emit several events per save; settle, then
				// drain the burst so one reload covers it.
				time.Sleep(100 * time.Millisecond)
				for drained := false; !drained; {
					select {
					case <-watcher.Events:
					default:
						drained = true
					}
				}
				s.reloadSeed(abs)

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Printf("seed watcher error: %v", err)
			}
		}
	}()
	return nil
}

// reloadSeed applies the seed diff and broadcasts every resulting
// mutation.
func (s *Server) reloadSeed(path string) {
	seeded, err := LoadSeed(path)
	if err != nil {
		s.logger.Printf("seed reload skipped: %v", err)
		return
	}

	muts := diffSeed(s.table.Snapshot(), seeded)
	if len(muts) == 0 {
		return
	}
	s.logger.Printf("seed changed, applying %d mutations", len(muts))
	for _, mut := range muts {
		stamped, err := s.table.Apply(mut)
		if err != nil {
			s.logger.Printf("seed mutation rejected: %v", err)
			continue
		}
		s.metrics.mutations.WithLabelValues(string(stamped.Type)).Inc()
		s.enqueueBroadcast(stamped)
	}
}
