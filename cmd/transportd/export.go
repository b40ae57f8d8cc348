package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/spf13/viper"

	"github.com/OCAP2/transport/internal/api"
	"github.com/OCAP2/transport/internal/geo"
	"github.com/OCAP2/transport/internal/path"
	"github.com/OCAP2/transport/internal/transport"
)

const exportSteps = 8

// exportPaths writes the paths of the selected transports, or of every
// transport when entries is empty, as one GeoJSON FeatureCollection.
// Broken templates are logged and skipped.
func exportPaths(ctx context.Context, src transport.TemplateSource, entries []uint32, w io.Writer) (int, error) {
	infos, err := src.TransportTemplates(ctx)
	if err != nil {
		return 0, err
	}
	want := make(map[uint32]bool, len(entries))
	for _, e := range entries {
		want[e] = true
	}

	features := make([]geom.GeoJSONFeature, 0, len(infos))
	for _, info := range infos {
		if len(want) > 0 && !want[info.Entry] {
			continue
		}
		nodes, err := src.PathNodes(ctx, info.PathID)
		if err != nil {
			return 0, err
		}
		tmpl, err := path.Generate(info, nodes)
		if err != nil {
			Logger.Error("Skipping transport", "entry", info.Entry, "error", err)
			continue
		}
		f, err := geo.PathFeature(info.Entry, info.Name, tmpl.Runs(exportSteps))
		if err != nil {
			Logger.Error("Skipping transport", "entry", info.Entry, "error", err)
			continue
		}
		f.Properties["period"] = tmpl.Period
		f.Properties["cyclic"] = tmpl.Cyclic
		f.Properties["maps"] = tmpl.MapsUsed
		features = append(features, f)
	}

	data, err := geo.FeatureCollection(features)
	if err != nil {
		return 0, err
	}
	_, err = fmt.Fprintln(w, string(data))
	return len(features), err
}

func parseEntries(args []string) ([]uint32, error) {
	entries := make([]uint32, 0, len(args))
	for _, a := range args {
		e, err := strconv.ParseUint(a, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid entry %q: %w", a, err)
		}
		entries = append(entries, uint32(e))
	}
	return entries, nil
}

func export(ctx context.Context, w io.Writer, args []string) error {
	entries, err := parseEntries(args)
	if err != nil {
		return err
	}

	st, err := openStorage()
	if err != nil {
		return err
	}
	defer st.Close()
	_, err = exportPaths(ctx, st, entries, w)
	return err
}

// upload exports the paths to the logs dir and sends them to the viewer.
func upload(ctx context.Context, args []string) error {
	entries, err := parseEntries(args)
	if err != nil {
		return err
	}

	client := api.New(viper.GetString("api.serverUrl"), viper.GetString("api.apiKey"))
	if err := client.Healthcheck(ctx); err != nil {
		return err
	}

	st, err := openStorage()
	if err != nil {
		return err
	}
	defer st.Close()

	overlay := filepath.Join(
		viper.GetString("logsDir"),
		fmt.Sprintf("%s_paths_%s.geojson", Name, SessionStartTime.Format("20060102_150405")),
	)
	f, err := os.Create(overlay)
	if err != nil {
		return fmt.Errorf("failed to create overlay file: %w", err)
	}
	n, err := exportPaths(ctx, st, entries, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}

	if err := client.UploadOverlay(ctx, overlay, api.OverlayMetadata{SessionID: SessionID, Transports: n}); err != nil {
		return err
	}
	Logger.Info("Path overlay uploaded", "file", overlay, "transports", n)
	return nil
}
