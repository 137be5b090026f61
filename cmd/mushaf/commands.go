package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/escalopa/mushaf-overlay/internal/adapter/quranapi"
	"github.com/escalopa/mushaf-overlay/internal/adapter/redis"
	"github.com/escalopa/mushaf-overlay/internal/adapter/sqlite"
	"github.com/escalopa/mushaf-overlay/internal/adapter/terminal"
	"github.com/escalopa/mushaf-overlay/internal/application"
	"github.com/escalopa/mushaf-overlay/internal/compositor"
	"github.com/escalopa/mushaf-overlay/internal/config"
	"github.com/escalopa/mushaf-overlay/internal/domain"
	"github.com/escalopa/mushaf-overlay/internal/highlight"
	"github.com/escalopa/mushaf-overlay/internal/pageindex"
	"github.com/escalopa/mushaf-overlay/internal/telemetry"
)

type app struct {
	configPath string
	studentID  string
	script     string
	width      int

	palette  compositor.Palette
	index    *pageindex.Index
	store    *sqlite.Store
	session  *application.Session
	renderer *terminal.Renderer
	log      *zap.Logger
	closers  []io.Closer
	out      io.Writer
}

func newRootCmd(out io.Writer) *cobra.Command {
	a := &app{out: out}

	root := &cobra.Command{
		Use:           "mushaf",
		Short:         "Read mushaf pages and manage a student's highlights",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.open(cmd.Context())
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return a.close()
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", os.Getenv("CONFIG_PATH"), "config file")
	root.PersistentFlags().StringVar(&a.studentID, "student", "local", "student whose highlights are shown")
	root.PersistentFlags().StringVar(&a.script, "script", "", "quran-uthmani or quran-simple (default from config)")
	root.PersistentFlags().IntVar(&a.width, "width", terminal.DefaultWidth, "terminal width")

	root.AddCommand(
		a.pageCmd(),
		a.jumpCmd(),
		a.juzCmd(),
		a.toggleCmd(),
		a.completeCmd(),
		a.summaryCmd(),
		a.listCmd(),
		a.noteCmd(),
		a.inkCmd(),
	)
	return root
}

func (a *app) open(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}

	a.log, err = telemetry.NewLogger(cfg.App.LogLevel, "console")
	if err != nil {
		return err
	}

	a.palette, err = compositor.NewPalette(cfg.Palette)
	if err != nil {
		return fmt.Errorf("palette: %w", err)
	}

	a.index, err = pageindex.Default()
	if err != nil {
		return err
	}
	a.index = a.index.WithLogger(a.log)

	var text domain.TextSourcePort = quranapi.NewTextClient(cfg.TextAPI.BaseURL, quranapi.WithTimeout(cfg.TextAPI.Timeout))
	if cfg.Redis.URI != "" {
		client, err := redis.Connect(cfg.Redis.URI)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, client)
		text = redis.NewCachedTextSource(client, text, cfg.Redis.TTL, a.log)
	}

	a.store, err = sqlite.New(cfg.Store.SQLitePath)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, a.store)
	if err := a.store.EnsureSchema(ctx); err != nil {
		return err
	}

	script := domain.ScriptID(cfg.App.DefaultScript)
	if a.script != "" {
		script = domain.ScriptID(a.script)
	}

	a.session = application.NewSession(a.studentID, script, application.Deps{
		Index:       a.index,
		Source:      text,
		Store:       a.store,
		Annotations: a.store,
		Palette:     a.palette,
		LoadTimeout: cfg.App.LoadTimeout,
	}, application.WithLogger(a.log), application.WithPrefetch(false))
	a.renderer = terminal.NewRenderer(terminal.WithWidth(a.width))

	return a.session.Open(ctx)
}

func (a *app) close() error {
	var firstErr error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if a.log != nil {
		_ = a.log.Sync()
	}
	return firstErr
}

func (a *app) show(ctx context.Context, page int) error {
	v, err := a.session.LoadPage(ctx, page)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(a.out, a.renderer.Page(v))
	return err
}

func (a *app) pageCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "page N",
		Short: "Render a mushaf page (1-604)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			page, err := atoi(args[0])
			if err != nil {
				return err
			}
			return a.show(cmd.Context(), page)
		},
	}
}

func (a *app) jumpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "jump SURAH [AYAH]",
		Short: "Render the page holding a surah or ayah",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			nums, err := atois(args)
			if err != nil {
				return err
			}
			ayah := 0
			if len(nums) == 2 {
				ayah = nums[1]
			}
			page, err := a.session.JumpTo(nums[0], ayah)
			if page == 0 {
				return err
			}
			if err != nil {
				a.log.Warn("page table fallback", zap.Error(err))
			}
			if pages := a.index.PagesForSurah(nums[0]); len(pages) > 1 {
				fmt.Fprintf(a.out, "surah %d spans pages %d-%d\n", nums[0], pages[0], pages[len(pages)-1])
			}
			return a.show(cmd.Context(), page)
		},
	}
}

func (a *app) juzCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "juz N",
		Short: "Render the first page of a juz (1-30)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			juz, err := atoi(args[0])
			if err != nil {
				return err
			}
			page, ok := a.index.FirstPageOfJuz(juz)
			if !ok {
				return fmt.Errorf("%w: juz %d", domain.ErrPageNotFound, juz)
			}
			return a.show(cmd.Context(), page)
		},
	}
}

// toggleCmd addresses words by their 1-based position on the page, as rendered
func (a *app) toggleCmd() *cobra.Command {
	var (
		category string
		preview  bool
	)

	toggle := &cobra.Command{
		Use:   "toggle",
		Short: "Toggle a highlight on the words of a page",
	}
	toggle.PersistentFlags().StringVarP(&category, "category", "c", string(domain.CategoryRecap), "highlight category")

	run := func(fn func(ctx context.Context, page int, pos []int, c domain.Category) (highlight.Outcome, error)) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			nums, err := atois(args)
			if err != nil {
				return err
			}
			c, err := domain.ParseCategory(category)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			page := nums[0]
			if _, err := a.session.LoadPage(ctx, page); err != nil {
				return err
			}
			pos := make([]int, 0, len(nums)-1)
			for _, n := range nums[1:] {
				pos = append(pos, n-1)
			}
			out, err := fn(ctx, page, pos, c)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%s %s highlight\n", out, c)
			return a.show(ctx, page)
		}
	}

	rangeCmd := &cobra.Command{
		Use:   "range PAGE AYAH FROM TO",
		Short: "Toggle a run of words inside one ayah",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !preview {
				return run(func(ctx context.Context, page int, pos []int, c domain.Category) (highlight.Outcome, error) {
					a.session.Select(page, pos[0], pos[1], pos[2])
					return a.session.CommitSelection(ctx, page, c)
				})(cmd, args)
			}
			nums, err := atois(args)
			if err != nil {
				return err
			}
			page := nums[0]
			if _, err := a.session.LoadPage(cmd.Context(), page); err != nil {
				return err
			}
			a.session.Select(page, nums[1]-1, nums[2]-1, nums[3]-1)
			defer a.session.CancelSelection(page)
			return a.show(cmd.Context(), page)
		},
	}
	rangeCmd.Flags().BoolVar(&preview, "preview", false, "show the selection without saving it")

	toggle.AddCommand(
		&cobra.Command{
			Use:   "word PAGE AYAH WORD",
			Short: "Toggle one word",
			Args:  cobra.ExactArgs(3),
			RunE: run(func(ctx context.Context, page int, pos []int, c domain.Category) (highlight.Outcome, error) {
				return a.session.ToggleWord(ctx, page, pos[0], pos[1], c)
			}),
		},
		&cobra.Command{
			Use:   "ayah PAGE AYAH",
			Short: "Toggle a whole ayah",
			Args:  cobra.ExactArgs(2),
			RunE: run(func(ctx context.Context, page int, pos []int, c domain.Category) (highlight.Outcome, error) {
				return a.session.ToggleWholeAyah(ctx, page, pos[0], c)
			}),
		},
		rangeCmd,
	)
	return toggle
}

func (a *app) completeCmd() *cobra.Command {
	var page int
	cmd := &cobra.Command{
		Use:   "complete CATEGORY",
		Short: "Mark every open highlight of a category as completed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := domain.ParseCategory(args[0])
			if err != nil {
				return err
			}
			n, err := a.session.CompleteCategory(cmd.Context(), c, page)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "completed %d %s highlights\n", n, c)
			return nil
		},
	}
	cmd.Flags().IntVar(&page, "page", highlight.AllPages, "limit to one page (0 means every page)")
	return cmd
}

func (a *app) summaryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summary [PAGE]",
		Short: "Count highlights per category",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			page := highlight.AllPages
			if len(args) == 1 {
				n, err := atoi(args[0])
				if err != nil {
					return err
				}
				page = n
			}
			_, err := fmt.Fprintln(a.out, terminal.Summary(a.session.Summary(page), a.palette))
			return err
		},
	}
}

func (a *app) listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list [PAGE]",
		Short: "List highlights with their IDs",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			hs := a.session.Model().All()
			if len(args) == 1 {
				page, err := atoi(args[0])
				if err != nil {
					return err
				}
				hs = a.session.Model().ForPage(page)
			}
			for _, h := range hs {
				fmt.Fprintf(a.out, "%s  p%-3d %s  %-8s %s\n", h.ID, h.PageNumber, describe(h), h.Category, status(h))
			}
			return nil
		},
	}
}

func (a *app) noteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "note HIGHLIGHT_ID TEXT...",
		Short: "Attach a note to a highlight",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := a.store.AddNote(cmd.Context(), args[0], strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, id)
			return nil
		},
	}
}

func (a *app) inkCmd() *cobra.Command {
	var clearInk bool
	cmd := &cobra.Command{
		Use:   "ink PAGE [AYAH WORD]",
		Short: "Mark a word as inked, or clear the page's ink with --clear",
		Args:  cobra.RangeArgs(1, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			nums, err := atois(args)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			page := nums[0]
			if clearInk {
				if err := a.store.ClearInk(ctx, a.studentID, page, a.session.Script()); err != nil {
					return err
				}
				return a.show(ctx, page)
			}
			if len(nums) != 3 {
				return fmt.Errorf("%w: ink needs PAGE AYAH WORD", domain.ErrInvalidRef)
			}
			v, err := a.session.LoadPage(ctx, page)
			if err != nil {
				return err
			}
			ai, wi := nums[1]-1, nums[2]-1
			if ai < 0 || ai >= len(v.Ayahs) || wi < 0 || wi >= len(v.Ayahs[ai].Words) {
				return fmt.Errorf("%w: no word %d of ayah %d on page %d", domain.ErrInvalidRef, nums[2], nums[1], page)
			}
			if _, err := a.store.AddInk(ctx, sqlite.InkStroke{
				StudentID: a.studentID,
				Page:      page,
				Script:    a.session.Script(),
				Word:      domain.WordRef{Ref: v.Ayahs[ai].Ref(), Word: wi},
			}); err != nil {
				return err
			}
			return a.show(ctx, page)
		},
	}
	cmd.Flags().BoolVar(&clearInk, "clear", false, "remove every stroke on the page")
	return cmd
}

func describe(h domain.Highlight) string {
	ref := fmt.Sprintf("%d:%d", h.Surah, h.AyahStart)
	switch h.Kind() {
	case domain.KindSingleWord:
		return fmt.Sprintf("%s w%d", ref, *h.WordStart+1)
	case domain.KindWordRange:
		return fmt.Sprintf("%s w%d-%d", ref, *h.WordStart+1, *h.WordEnd+1)
	default:
		return ref
	}
}

func status(h domain.Highlight) string {
	if h.Completed() {
		return "completed " + h.CompletedAt.Format("2006-01-02")
	}
	return "open"
}

func atoi(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", domain.ErrInvalidRef, s)
	}
	return n, nil
}

func atois(args []string) ([]int, error) {
	out := make([]int, 0, len(args))
	for _, s := range args {
		n, err := atoi(s)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}
