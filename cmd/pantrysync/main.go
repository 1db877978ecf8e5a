package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/vbonduro/pantrysync/internal/domain"
	"github.com/vbonduro/pantrysync/internal/photostore"
	"golang.org/x/sync/errgroup"
)

type rootOptions struct {
	configPath string
	logFormat  string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "pantrysync",
		Short:         "Pantry tracker with offline photo sync and model fallback",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "optional config file (yaml, json or toml); environment variables override it")
	root.PersistentFlags().StringVar(&opts.logFormat, "log-format", "json", "log format: json or text")

	root.AddCommand(
		newServeCommand(opts),
		newReconcileCommand(opts),
		newAttachCommand(opts),
		newLabelCommand(opts),
		newRewriteCommand(opts),
	)
	return root
}

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the background sync scheduler",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, opts.configPath, opts.logFormat)
			if err != nil {
				return err
			}
			defer a.cleanup()

			srv := a.server().HTTPServer(a.cfg.ListenAddr)
			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				a.scheduler.Run(gctx)
				return nil
			})
			g.Go(func() error {
				a.logger.Info("server starting", "addr", a.cfg.ListenAddr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("server error: %w", err)
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				a.logger.Info("shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					return fmt.Errorf("failed to shut down server: %w", err)
				}
				return nil
			})
			return g.Wait()
		},
	}
}

func newReconcileCommand(opts *rootOptions) *cobra.Command {
	var (
		owner   string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Upload pending local photos once and print the report",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}
			a, err := newApp(ctx, opts.configPath, opts.logFormat)
			if err != nil {
				return err
			}
			defer a.cleanup()

			if owner == "" {
				visited, err := a.scheduler.RunOnce(ctx)
				a.logger.Info("reconciled pending owners", "owners", visited)
				if err != nil {
					return fmt.Errorf("failed to reconcile pending owners: %w", err)
				}
				return nil
			}
			report, err := a.engine.Reconcile(ctx, owner)
			if report != nil {
				if perr := printJSON(cmd, report); perr != nil {
					return perr
				}
			}
			return err
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "owner to reconcile; empty reconciles every owner with pending photos")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "overall deadline for the run")
	return cmd
}

func newAttachCommand(opts *rootOptions) *cobra.Command {
	var owner, collection, id, photo string
	cmd := &cobra.Command{
		Use:   "attach",
		Short: "Attach a photo file to a record",
		RunE: func(cmd *cobra.Command, _ []string) error {
			coll, ok := domain.ParseCollection(collection)
			if !ok {
				return fmt.Errorf("unknown collection %q", collection)
			}
			abs, err := filepath.Abs(photo)
			if err != nil {
				return fmt.Errorf("failed to resolve photo path: %w", err)
			}

			ctx := cmd.Context()
			a, err := newApp(ctx, opts.configPath, opts.logFormat)
			if err != nil {
				return err
			}
			defer a.cleanup()

			rec, err := a.service.AttachPhotoFromURI(ctx, owner, coll, id, "file://"+filepath.ToSlash(abs))
			if err != nil {
				return err
			}
			return printJSON(cmd, rec)
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "record owner")
	cmd.Flags().StringVar(&collection, "collection", string(domain.CollectionItems), "record collection")
	cmd.Flags().StringVar(&id, "id", "", "record id")
	cmd.Flags().StringVar(&photo, "photo", "", "path of the photo to attach")
	for _, f := range []string{"owner", "id", "photo"} {
		_ = cmd.MarkFlagRequired(f)
	}
	return cmd
}

func newLabelCommand(opts *rootOptions) *cobra.Command {
	var image string
	cmd := &cobra.Command{
		Use:   "label",
		Short: "Label a photo with the configured vision candidates",
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := os.ReadFile(image)
			if err != nil {
				return fmt.Errorf("failed to read image: %w", err)
			}

			ctx := cmd.Context()
			a, err := newApp(ctx, opts.configPath, opts.logFormat)
			if err != nil {
				return err
			}
			defer a.cleanup()

			c := a.candidates()
			mimeType := mimeForExt(filepath.Ext(image))
			result, err := a.inference.Label(ctx, data, mimeType, c.Vision, c.MaxAttempts)
			if err != nil {
				return err
			}
			if result == nil {
				return errors.New("no vision candidates configured")
			}
			return printJSON(cmd, result)
		},
	}
	cmd.Flags().StringVar(&image, "image", "", "path of the image to label")
	_ = cmd.MarkFlagRequired("image")
	return cmd
}

func newRewriteCommand(opts *rootOptions) *cobra.Command {
	var text string
	cmd := &cobra.Command{
		Use:   "rewrite",
		Short: "Clean up a free-text item name with the configured text candidates",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, opts.configPath, opts.logFormat)
			if err != nil {
				return err
			}
			defer a.cleanup()

			c := a.candidates()
			out, err := a.inference.Rewrite(ctx, text, c.Text, c.MaxAttempts)
			if err != nil {
				return err
			}
			if out == "" {
				return errors.New("no text candidates configured")
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), out)
			return err
		},
	}
	cmd.Flags().StringVar(&text, "text", "", "text to rewrite")
	_ = cmd.MarkFlagRequired("text")
	return cmd
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// mimeForExt guesses the MIME type of a local image from its extension.
func mimeForExt(ext string) string {
	ext = strings.ToLower(ext)
	for _, mime := range []string{"image/png", "image/gif", "image/webp", "image/heic"} {
		if photostore.ExtForMimeType(mime) == ext {
			return mime
		}
	}
	return "image/jpeg"
}
