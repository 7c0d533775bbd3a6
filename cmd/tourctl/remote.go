package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/playperu/campustour/internal/loader"
	"github.com/playperu/campustour/internal/tour"
)

func (c *cli) pullCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "pull",
		Short: "Download the tour document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := c.gateway().FetchTour(cmd.Context())
			if err != nil {
				return err
			}
			if out == "" {
				return writeTour(cmd.OutOrStdout(), d)
			}
			return writeTourFile(out, d)
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "write to this file instead of stdout")
	return cmd
}

func (c *cli) pushCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "push <tour.json>",
		Short: "Validate and upload a tour document, replacing the stored one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := readTourFile(args[0])
			if err != nil {
				return err
			}
			if err := tour.Validate(d); err != nil {
				return fmt.Errorf("%s is invalid:\n%w", args[0], err)
			}
			if err := c.gateway().SaveTour(cmd.Context(), d); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved %d scenes\n", len(d.Scenes))
			return nil
		},
	}
}

func (c *cli) imagesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "images",
		Short: "List the panorama images on the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			names, err := c.gateway().ListImages(cmd.Context())
			if err != nil {
				return err
			}
			for _, n := range names {
				fmt.Fprintln(cmd.OutOrStdout(), n)
			}
			return nil
		},
	}
}

func (c *cli) uploadCmd() *cobra.Command {
	var sceneID string
	cmd := &cobra.Command{
		Use:   "upload <image>",
		Short: "Send a panorama to the transcoder, optionally assigning it to a scene",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			gw := c.gateway()
			u, err := gw.UploadImage(cmd.Context(), filepath.Base(args[0]), f)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "uploaded %s (%dx%d), low-res %s\n",
				u.Filename, u.Dimensions.Width, u.Dimensions.Height, u.LowResFilename)
			if sceneID == "" {
				return nil
			}

			d, err := gw.FetchTour(cmd.Context())
			if err != nil {
				return err
			}
			s, ok := d.Scene(sceneID)
			if !ok {
				return fmt.Errorf("scene %q: %w", sceneID, tour.ErrSceneNotFound)
			}
			if err := d.ReplaceScene(u.Apply(s)); err != nil {
				return err
			}
			if err := gw.SaveTour(cmd.Context(), d); err != nil {
				return err
			}
			fmt.Fprintf(out, "scene %s now shows %s\n", sceneID, u.Filename)
			return nil
		},
	}
	cmd.Flags().StringVar(&sceneID, "scene", "", "scene id to point at the uploaded image")
	return cmd
}

func (c *cli) checkImagesCmd() *cobra.Command {
	var parallel int
	cmd := &cobra.Command{
		Use:   "check-images",
		Short: "Fetch every scene's low- and full-resolution image and report failures",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			d, err := c.gateway().FetchTour(ctx)
			if err != nil {
				return err
			}
			pre, err := loader.NewHTTPPreloader(nil, strings.TrimRight(c.server, "/")+"/")
			if err != nil {
				return err
			}

			var (
				mu       sync.Mutex
				failures []error
			)
			g, gctx := errgroup.WithContext(ctx)
			g.SetLimit(max(parallel, 1))
			for _, s := range d.Scenes {
				for _, u := range []string{tour.ResolveLowRes(s), s.ImageURL} {
					g.Go(func() error {
						if err := pre.Preload(gctx, u); err != nil {
							mu.Lock()
							failures = append(failures, fmt.Errorf("scene %s: %w", s.ID, err))
							mu.Unlock()
						}
						return nil
					})
				}
			}
			g.Wait()
			slices.SortFunc(failures, func(a, b error) int { return strings.Compare(a.Error(), b.Error()) })

			out := cmd.OutOrStdout()
			for _, err := range failures {
				fmt.Fprintln(out, "FAIL", err)
			}
			fmt.Fprintf(out, "%d scenes, %d image failures\n", len(d.Scenes), len(failures))
			if len(failures) > 0 {
				return errors.Join(failures...)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&parallel, "parallel", 4, "images fetched at once")
	return cmd
}
