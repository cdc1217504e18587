package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/koustreak/bucketvis/internal/errs"
	"github.com/koustreak/bucketvis/internal/filestore"
	"github.com/koustreak/bucketvis/internal/links"
	"github.com/koustreak/bucketvis/internal/policy"
	"github.com/koustreak/bucketvis/internal/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer a.close()

			srv := server.New(server.Options{
				Visibility: a.vis,
				Links:      a.links,
				Objects:    a.store,
				Journal:    a.sink,
				Logger:     a.log,
				Metrics:    a.metrics,
			})
			return srv.Run(cmd.Context(), server.Config{
				Listen:          a.cfg.Server.Listen,
				ReadTimeout:     a.cfg.Server.ReadTimeout.Std(),
				WriteTimeout:    a.cfg.Server.WriteTimeout.Std(),
				ShutdownTimeout: a.cfg.Server.ShutdownTimeout.Std(),
			})
		},
	}
}

func newVisibilityCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "visibility <bucket> [path]",
		Aliases: []string{"vis"},
		Short:   "Show whether a path is public",
		Long: `Show whether a path is public.

A trailing "/" designates a directory; no path designates the bucket root.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.close()

			t := targetArgs(args)
			v, err := a.vis.Resolve(cmd.Context(), t)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), v, func(w io.Writer) {
				fmt.Fprintf(w, "%s\t%s\n", t, describeVisibility(v))
			})
		},
	}
}

func newToggleCmd(public bool) *cobra.Command {
	use, short := "private <bucket> [path]", "Remove a path's own public entry"
	if public {
		use, short = "public <bucket> [path]", "Make a path publicly readable"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.close()

			t := targetArgs(args)
			toggle := a.vis.SetPathPrivate
			if public {
				toggle = a.vis.SetPathPublic
			}
			res, err := toggle(cmd.Context(), t)
			if err != nil {
				return err
			}
			if res.Disabled {
				return errs.New(errs.ErrKindToggleDisabled, t.String()+" is public through a parent directory")
			}
			return render(cmd.OutOrStdout(), res, func(w io.Writer) {
				state := "unchanged"
				if res.Changed {
					state = "updated"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", t, describeVisibility(res.Visibility), state)
			})
		},
	}
}

func newResourcesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resources <bucket>",
		Short: "List every public entry of the bucket policy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.close()

			res, err := a.vis.Resources(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), res, func(w io.Writer) {
				for _, r := range res {
					fmt.Fprintln(w, r)
				}
			})
		},
	}
}

func newPruneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prune <bucket> <resource>",
		Short: "Remove one entry from the bucket policy",
		Long: `Remove one entry from the bucket policy.

Only the exact entry is removed. Removing a directory wildcard such as
'arn:aws:s3:::reports/2026/*' keeps entries for files below it.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.close()

			res, err := a.vis.DeleteResourceEntry(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), res, func(w io.Writer) {
				if !res.Changed {
					fmt.Fprintf(w, "%s is not listed\n", args[1])
					return
				}
				for _, r := range res.Resources {
					fmt.Fprintln(w, r)
				}
			})
		},
	}
}

func newLinkCmd() *cobra.Command {
	var locale string
	cmd := &cobra.Command{
		Use:   "link <bucket> <path>",
		Short: "Print a download link for an object",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.close()

			ctx := links.WithLocale(cmd.Context(), locale)
			ref, err := a.links.DownloadReference(ctx, policy.NewTarget(args[0], args[1]))
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), ref, func(w io.Writer) {
				fmt.Fprintln(w, ref.URL)
				if ref.Kind == links.KindPresigned {
					fmt.Fprintf(w, "expires %s\n", ref.ExpirationLabel)
				}
			})
		},
	}
	cmd.Flags().StringVar(&locale, "locale", "", "locale for the expiration label (overrides config)")
	return cmd
}

func newBucketsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "buckets",
		Short: "List the buckets visible to the current credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.close()

			buckets, err := a.store.ListBuckets(cmd.Context())
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), buckets, func(w io.Writer) { writeBuckets(w, buckets) })
		},
	}
}

func writeBuckets(w io.Writer, buckets []filestore.BucketInfo) {
	for _, b := range buckets {
		created := "-"
		if !b.CreatedAt.IsZero() {
			created = b.CreatedAt.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%s\t%s\n", b.Name, created)
	}
}

type listing struct {
	Prefix  string                 `json:"prefix"`
	Objects []filestore.ObjectInfo `json:"objects"`
	Public  []policy.Visibility    `json:"visibility"`
}

func newLsCmd() *cobra.Command {
	var recursive bool
	cmd := &cobra.Command{
		Use:   "ls <bucket> [prefix...]",
		Short: "List objects with their visibility",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.close()

			bucket, prefixes := args[0], args[1:]
			if len(prefixes) == 0 {
				prefixes = []string{""}
			}

			listings := make([]listing, len(prefixes))
			g, ctx := errgroup.WithContext(cmd.Context())
			g.SetLimit(4)
			for i, prefix := range prefixes {
				g.Go(func() error {
					objects, err := a.store.ListObjects(ctx, bucket, filestore.ListOptions{Prefix: prefix, Recursive: recursive})
					if err != nil {
						return err
					}
					keys := make([]string, len(objects))
					for j, o := range objects {
						keys[j] = o.Key
					}
					vis, err := a.vis.ResolveMany(ctx, bucket, keys)
					if err != nil {
						return err
					}
					listings[i] = listing{Prefix: prefix, Objects: objects, Public: vis}
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			return render(cmd.OutOrStdout(), listings, func(w io.Writer) {
				for _, l := range listings {
					for j, o := range l.Objects {
						size := fmt.Sprint(o.Size)
						if o.IsDir {
							size = "-"
						}
						fmt.Fprintf(w, "%s\t%s\t%s\n", describeVisibility(l.Public[j]), size, o.Key)
					}
				}
			})
		},
	}
	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "list all objects below the prefix")
	return cmd
}

func targetArgs(args []string) policy.Target {
	path := ""
	if len(args) > 1 {
		path = args[1]
	}
	return policy.NewTarget(args[0], path)
}

func describeVisibility(v policy.Visibility) string {
	switch {
	case v.IsPublicFile && v.IsInPublicDirectory:
		return "public (own entry, inherited)"
	case v.IsPublicFile:
		return "public"
	case v.IsInPublicDirectory:
		return "public (inherited)"
	default:
		return "private"
	}
}

// render writes v as JSON with -o json, or through text otherwise.
func render(out io.Writer, v any, text func(io.Writer)) error {
	if output == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	text(tw)
	return tw.Flush()
}
