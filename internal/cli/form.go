package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pendergraft/dappkit/internal/formstate/domain"
	"github.com/pendergraft/dappkit/internal/storage"
	"github.com/pendergraft/dappkit/pkg/client"
)

// remoteStore backs the form state service with a dappkit-server. The server
// applies its own session TTL and field limit.
type remoteStore struct {
	c *client.Client
}

func splitKey(key string) (path, formID string) {
	path, formID, _ = strings.Cut(key, "#")
	return path, formID
}

func (r remoteStore) SaveSnapshot(ctx context.Context, sessionID, key string, data []byte, _ time.Duration) error {
	path, formID := splitKey(key)
	return r.c.PutSnapshotRaw(ctx, sessionID, path, formID, data)
}

func (r remoteStore) GetSnapshot(ctx context.Context, sessionID, key string) (*storage.Snapshot, error) {
	path, formID := splitKey(key)
	data, err := r.c.GetSnapshotRaw(ctx, sessionID, path, formID)
	if client.IsNotFound(err) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &storage.Snapshot{SessionID: sessionID, Key: key, Data: data}, nil
}

func (r remoteStore) ListSnapshotKeys(ctx context.Context, sessionID string) ([]string, error) {
	return r.c.ListKeys(ctx, sessionID)
}

func (r remoteStore) DeleteSession(ctx context.Context, sessionID string) error {
	return r.c.DeleteSession(ctx, sessionID)
}

// newFormService returns the form state service for a dappkit-server
func newFormService(c *client.Client, logger *slog.Logger) domain.Service {
	return domain.LoggingMiddleware(logger)(domain.NewService(remoteStore{c: c}, domain.Options{}))
}

func formService(cmd *cobra.Command) domain.Service {
	return newFormService(client.New(getServer()), newLogger(cmd.ErrOrStderr()))
}

// formTarget addresses one form's snapshot
type formTarget struct {
	session string
	path    string
	formID  string
	index   int
}

func (t *formTarget) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&t.path, "path", "", "page path the form lives on, e.g. /register (required)")
	cmd.Flags().StringVar(&t.formID, "form", "", "form id")
	cmd.Flags().IntVar(&t.index, "index", 0, "position among preserved forms when the form has no id")
	_ = cmd.MarkFlagRequired("path")
}

func (t *formTarget) form(fields []domain.Field) *domain.Form {
	return &domain.Form{ID: t.formID, Preserve: true, Index: t.index, Fields: fields}
}

func createFormCmd() *cobra.Command {
	var session string

	cmd := &cobra.Command{
		Use:   "form",
		Short: "Form snapshot commands",
		Long: `Save and restore form snapshots on a dappkit-server.

Snapshots belong to a browsing session. Create one with 'dappkit form new'
and pass it with --session or DAPPKIT_SESSION.
`,
	}
	cmd.PersistentFlags().StringVar(&session, "session", "", "session id (default $DAPPKIT_SESSION)")

	getSession := func() (string, error) {
		if session != "" {
			return session, nil
		}
		if env := os.Getenv("DAPPKIT_SESSION"); env != "" {
			return env, nil
		}
		return "", errors.New("no session: pass --session or set DAPPKIT_SESSION (create one with 'dappkit form new')")
	}

	cmd.AddCommand(createFormNewCmd())
	cmd.AddCommand(createFormSaveCmd(getSession))
	cmd.AddCommand(createFormRestoreCmd(getSession))
	cmd.AddCommand(createFormListCmd(getSession))
	cmd.AddCommand(createFormClearCmd(getSession))
	cmd.AddCommand(createFormSavePageCmd(getSession))
	cmd.AddCommand(createFormRestorePageCmd(getSession))

	return cmd
}

func createFormNewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "new",
		Short: "Start a new browsing session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFormNew(cmd.Context(), cmd.OutOrStdout(), client.New(getServer()))
		},
	}
}

func createFormSaveCmd(getSession func() (string, error)) *cobra.Command {
	var target formTarget

	cmd := &cobra.Command{
		Use:   "save name=value...",
		Short: "Save a form's field values",
		Long: `Save a form's field values, replacing the previous snapshot.

EXAMPLES:
  dappkit form save --path /register --form landForm owner="Ravi Kumar" land_id=L-204
`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := getSession()
			if err != nil {
				return err
			}
			target.session = session

			fields, err := parseFields(args)
			if err != nil {
				return err
			}
			return runFormSave(cmd.Context(), cmd.OutOrStdout(), formService(cmd), target, fields)
		},
	}
	target.register(cmd)

	return cmd
}

func createFormRestoreCmd(getSession func() (string, error)) *cobra.Command {
	var target formTarget
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "restore [field...]",
		Short: "Restore a form's saved values",
		Long: `Restore the saved values of a form.

With field names, only those fields are restored and names the snapshot does
not hold are left empty. Without names, every saved field is shown.
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := getSession()
			if err != nil {
				return err
			}
			target.session = session
			return runFormRestore(cmd.Context(), cmd.OutOrStdout(), formService(cmd), target, args, jsonOutput)
		},
	}
	target.register(cmd)
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	return cmd
}

func createFormListCmd(getSession func() (string, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the session's snapshot keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := getSession()
			if err != nil {
				return err
			}
			return runFormList(cmd.Context(), cmd.OutOrStdout(), formService(cmd), session)
		},
	}
}

func createFormClearCmd(getSession func() (string, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "End the session and drop its snapshots",
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := getSession()
			if err != nil {
				return err
			}
			return runFormClear(cmd.Context(), cmd.OutOrStdout(), formService(cmd), session)
		},
	}
}

func runFormNew(ctx context.Context, w io.Writer, c *client.Client) error {
	id, err := c.CreateSession(ctx)
	if err != nil {
		return fmt.Errorf("creating session: %w", err)
	}
	fmt.Fprintln(w, id)
	return nil
}

func runFormSave(ctx context.Context, w io.Writer, svc domain.Service, t formTarget, fields []domain.Field) error {
	form := t.form(fields)
	if err := svc.Save(ctx, t.session, t.path, form); err != nil {
		return fmt.Errorf("saving snapshot: %w", err)
	}
	fmt.Fprintf(w, "✅ Saved %d field(s) to %s\n", len(form.Values()), domain.Key(t.path, t.formID, t.index))
	return nil
}

func runFormRestore(ctx context.Context, w io.Writer, svc domain.Service, t formTarget, names []string, jsonOutput bool) error {
	if len(names) == 0 {
		saved, err := savedNames(ctx, svc, t)
		if err != nil {
			return err
		}
		names = saved
	}

	fields := make([]domain.Field, 0, len(names))
	for _, name := range names {
		fields = append(fields, domain.Field{Name: name})
	}
	form := t.form(fields)
	restored, err := svc.Restore(ctx, t.session, t.path, form)
	if err != nil {
		return fmt.Errorf("reading snapshot: %w", err)
	}

	if jsonOutput {
		return writeJSON(w, form.Values())
	}
	for _, f := range form.Fields {
		fmt.Fprintf(w, "%s=%s\n", f.Name, f.Value)
	}
	fmt.Fprintf(w, "Restored %d field(s) from %s\n", restored, domain.Key(t.path, t.formID, t.index))
	return nil
}

// savedNames lists the field names a snapshot holds, sorted. A missing or
// malformed snapshot has none.
func savedNames(ctx context.Context, svc domain.Service, t formTarget) ([]string, error) {
	data, err := svc.GetRaw(ctx, t.session, t.path, t.form(nil).Identity())
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}

	var snap domain.Snapshot
	if json.Unmarshal(data, &snap) != nil {
		return nil, nil
	}
	names := make([]string, 0, len(snap))
	for name := range snap {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func runFormList(ctx context.Context, w io.Writer, svc domain.Service, session string) error {
	keys, err := svc.Keys(ctx, session)
	if err != nil {
		return fmt.Errorf("listing snapshots: %w", err)
	}
	if len(keys) == 0 {
		fmt.Fprintln(w, "No snapshots in this session.")
		return nil
	}
	for _, k := range keys {
		fmt.Fprintln(w, k)
	}
	return nil
}

func runFormClear(ctx context.Context, w io.Writer, svc domain.Service, session string) error {
	if err := svc.ClearSession(ctx, session); err != nil {
		return fmt.Errorf("clearing session: %w", err)
	}
	fmt.Fprintf(w, "✅ Cleared session %s\n", session)
	return nil
}

func createFormSavePageCmd(getSession func() (string, error)) *cobra.Command {
	var pagePath string

	cmd := &cobra.Command{
		Use:   "save-page <page.json|->",
		Short: "Save every preserved form of a page",
		Long: `Save every form marked "preserve" in a page description.

Forms without an id are keyed by their position among the preserved forms,
so the order in the file matters.

PAGE FILE:
  [
    {"id": "landForm", "preserve": true, "fields": [{"name": "owner", "value": "Ravi"}]},
    {"preserve": true, "fields": [{"name": "note", "value": "draft"}]}
  ]
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := getSession()
			if err != nil {
				return err
			}
			forms, err := readPage(cmd, args[0])
			if err != nil {
				return err
			}
			return runFormSavePage(cmd.Context(), cmd.OutOrStdout(), formService(cmd), session, pagePath, forms)
		},
	}
	cmd.Flags().StringVar(&pagePath, "path", "", "page path the forms live on (required)")
	_ = cmd.MarkFlagRequired("path")

	return cmd
}

func createFormRestorePageCmd(getSession func() (string, error)) *cobra.Command {
	var pagePath string

	cmd := &cobra.Command{
		Use:   "restore-page <page.json|->",
		Short: "Fill a page's preserved forms from their snapshots",
		Long: `Restore every preserved form in a page description and print the page
as JSON with the saved values filled in. Fields the snapshot does not hold
keep the value from the file.
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := getSession()
			if err != nil {
				return err
			}
			forms, err := readPage(cmd, args[0])
			if err != nil {
				return err
			}
			return runFormRestorePage(cmd.Context(), cmd.OutOrStdout(), formService(cmd), session, pagePath, forms)
		},
	}
	cmd.Flags().StringVar(&pagePath, "path", "", "page path the forms live on (required)")
	_ = cmd.MarkFlagRequired("path")

	return cmd
}

// readPage decodes a page description from a file, or stdin for "-"
func readPage(cmd *cobra.Command, name string) ([]*domain.Form, error) {
	var r io.Reader = cmd.InOrStdin()
	if name != "-" {
		f, err := os.Open(name)
		if err != nil {
			return nil, fmt.Errorf("opening page file: %w", err)
		}
		defer f.Close()
		r = f
	}
	return decodePage(r)
}

func decodePage(r io.Reader) ([]*domain.Form, error) {
	var forms []*domain.Form
	if err := json.NewDecoder(r).Decode(&forms); err != nil {
		return nil, fmt.Errorf("decoding page: %w", err)
	}
	return forms, nil
}

func runFormSavePage(ctx context.Context, w io.Writer, svc domain.Service, session, pagePath string, forms []*domain.Form) error {
	preserved := domain.PreserveAll(forms)
	if len(preserved) == 0 {
		fmt.Fprintln(w, "No preserved forms on this page.")
		return nil
	}
	for _, f := range preserved {
		key := domain.Key(pagePath, f.ID, f.Index)
		if err := svc.Save(ctx, session, pagePath, f); err != nil {
			return fmt.Errorf("saving %s: %w", key, err)
		}
		fmt.Fprintf(w, "✅ Saved %d field(s) to %s\n", len(f.Values()), key)
	}
	return nil
}

func runFormRestorePage(ctx context.Context, w io.Writer, svc domain.Service, session, pagePath string, forms []*domain.Form) error {
	for _, f := range domain.PreserveAll(forms) {
		if _, err := svc.Restore(ctx, session, pagePath, f); err != nil {
			return fmt.Errorf("restoring %s: %w", domain.Key(pagePath, f.ID, f.Index), err)
		}
	}
	return writeJSON(w, forms)
}

// parseFields turns name=value arguments into form fields
func parseFields(args []string) ([]domain.Field, error) {
	fields := make([]domain.Field, 0, len(args))
	for _, arg := range args {
		name, value, ok := strings.Cut(arg, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid field %q: expected name=value", arg)
		}
		fields = append(fields, domain.Field{Name: name, Value: value})
	}
	return fields, nil
}
