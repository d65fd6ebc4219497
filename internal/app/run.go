package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/vk/calcgrid/internal/ctxlog"
	"github.com/vk/calcgrid/internal/fsutil"
	"github.com/vk/calcgrid/internal/model"
	"github.com/vk/calcgrid/internal/runcontext"
	"github.com/vk/calcgrid/internal/snapshotstore"
	"github.com/vk/calcgrid/internal/value"
)

// DocumentExtension is the extension of saved model documents.
const DocumentExtension = ".json"

// Run loads the document at path, calculates it and prints every member with
// its state. When saveAs is set the document is also stored under that id.
func (a *App) Run(ctx context.Context, path, saveAs string) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.", "path", path)

	doc, err := readDocument(path)
	if err != nil {
		return err
	}

	a.logger.Info("🚀 Calculating document...", "path", path)
	d, err := runcontext.Open(ctx, path, a.env, doc, nil)
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	defer d.Close()
	writeReport(a.outW, d.ConfirmedModel())
	a.logger.Info("🏁 Calculation finished.")

	if saveAs == "" {
		return nil
	}
	if err := a.open(ctx); err != nil {
		return err
	}
	saved, err := d.Snapshot()
	if err != nil {
		return err
	}
	info, err := a.store.Save(ctx, saveAs, saved)
	if err != nil {
		return fmt.Errorf("failed to save %s: %w", saveAs, err)
	}
	a.logger.Info("💾 Document saved", "id", info.ID, "revision", info.Revision)
	return nil
}

// Check loads every document under paths and reports the members that
// calculate to an error. It returns the number of failing documents.
func (a *App) Check(ctx context.Context, paths []string) (int, error) {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	files, err := fsutil.FindFilesByExtension(paths, DocumentExtension)
	if err != nil {
		return 0, err
	}
	a.logger.Debug("Discovered documents.", "count", len(files))

	failed := 0
	for _, file := range files {
		problems, err := a.checkDocument(ctx, file)
		if err != nil {
			failed++
			fmt.Fprintf(a.outW, "FAIL %s: %v\n", file, err)
			continue
		}
		if len(problems) > 0 {
			failed++
			fmt.Fprintf(a.outW, "FAIL %s\n", file)
			for _, p := range problems {
				fmt.Fprintf(a.outW, "  %s\n", p)
			}
			continue
		}
		fmt.Fprintf(a.outW, "ok   %s\n", file)
	}
	return failed, nil
}

func (a *App) checkDocument(ctx context.Context, path string) ([]string, error) {
	doc, err := readDocument(path)
	if err != nil {
		return nil, err
	}
	d, err := runcontext.Open(ctx, path, a.env, doc, nil)
	if err != nil {
		return nil, err
	}
	defer d.Close()

	m := d.ConfirmedModel()
	var problems []string
	for _, member := range m.Members() {
		if member.State() == model.StateError {
			problems = append(problems, fmt.Sprintf("%s: %v", member.FullName(m), member.Error()))
		}
	}
	sort.Strings(problems)
	return problems, nil
}

// Snapshots lists the stored documents.
func (a *App) Snapshots(ctx context.Context) ([]snapshotstore.Info, error) {
	if err := a.open(ctx); err != nil {
		return nil, err
	}
	return a.store.List(ctx)
}

// DeleteSnapshot removes a stored document.
func (a *App) DeleteSnapshot(ctx context.Context, id string) error {
	if err := a.open(ctx); err != nil {
		return err
	}
	return a.store.Delete(ctx, id)
}

func readDocument(path string) (*model.ModelJSON, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}
	doc, err := model.ParseModelJSON(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return doc, nil
}

// writeReport prints one line per member, ordered by full name.
func writeReport(w io.Writer, m *model.Model) {
	members := m.Members()
	sort.Slice(members, func(i, j int) bool {
		return members[i].FullName(m) < members[j].FullName(m)
	})
	for _, member := range members {
		name := member.FullName(m)
		switch member.State() {
		case model.StateNormal:
			raw, err := value.ToJSON(member.Data())
			if err != nil {
				fmt.Fprintf(w, "%s = <%s>\n", name, member.TypeName())
				continue
			}
			fmt.Fprintf(w, "%s = %s\n", name, raw)
		case model.StateError:
			fmt.Fprintf(w, "%s ! %v\n", name, member.Error())
		default:
			fmt.Fprintf(w, "%s ? %s\n", name, member.State())
		}
	}
}
