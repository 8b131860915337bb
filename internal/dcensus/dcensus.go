// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package dcensus provides build instrumentation.
package dcensus

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
)

var (
	keyStatus    = tag.MustNewKey("module.status")
	keyCacheHit  = tag.MustNewKey("cache.hit")
	keyKind      = tag.MustNewKey("artifact.kind")
	keyStageName = tag.MustNewKey("stage.name")

	modulesTransformed = stats.Int64(
		"lens/modules_transformed",
		"Modules run through their transformation chain.",
		stats.UnitDimensionless,
	)
	stageLatency = stats.Float64(
		"lens/stage_latency",
		"Latency of a single transformation stage.",
		stats.UnitMilliseconds,
	)
	cacheResults = stats.Int64(
		"lens/cache_result_count",
		"The result of a transform cache lookup.",
		stats.UnitDimensionless,
	)
	artifactBytes = stats.Int64(
		"lens/artifact_bytes",
		"Size of an emitted artifact.",
		stats.UnitBytes,
	)

	// ModuleCount counts transformed modules by status ("ok" or "error").
	ModuleCount = &view.View{
		Name:        "lens/module/count",
		Measure:     modulesTransformed,
		Aggregation: view.Count(),
		Description: "modules transformed, by status",
		TagKeys:     []tag.Key{keyStatus},
	}
	// StageLatency is a distribution of stage latencies by stage name.
	StageLatency = &view.View{
		Name:        "lens/stage/latency",
		Measure:     stageLatency,
		Aggregation: view.Distribution(1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000),
		Description: "stage latency, by stage",
		TagKeys:     []tag.Key{keyStageName},
	}
	// CacheResultCount counts transform cache lookups by hit success.
	CacheResultCount = &view.View{
		Name:        "lens/cache/result_count",
		Measure:     cacheResults,
		Aggregation: view.Count(),
		Description: "cache results, by whether it was a hit",
		TagKeys:     []tag.Key{keyCacheHit},
	}
	// ArtifactBytes sums emitted bytes by artifact kind.
	ArtifactBytes = &view.View{
		Name:        "lens/artifact/bytes",
		Measure:     artifactBytes,
		Aggregation: view.Sum(),
		Description: "bytes emitted, by artifact kind",
		TagKeys:     []tag.Key{keyKind},
	}
)

// Views are all the views defined by this package.
var Views = []*view.View{ModuleCount, StageLatency, CacheResultCount, ArtifactBytes}

// Init registers the given views, or all of Views if none are given.
func Init(views ...*view.View) error {
	if len(views) == 0 {
		views = Views
	}
	if err := view.Register(views...); err != nil {
		return fmt.Errorf("view.Register: %v", err)
	}
	return nil
}

// RecordModule records that a module finished its chain.
func RecordModule(ctx context.Context, ok bool) {
	status := "ok"
	if !ok {
		status = "error"
	}
	stats.RecordWithTags(ctx,
		[]tag.Mutator{tag.Upsert(keyStatus, status)},
		modulesTransformed.M(1))
}

// RecordStage records how long a stage took.
func RecordStage(ctx context.Context, stage string, d time.Duration) {
	stats.RecordWithTags(ctx,
		[]tag.Mutator{tag.Upsert(keyStageName, stage)},
		stageLatency.M(float64(d)/float64(time.Millisecond)))
}

// RecordCacheLookup records a transform cache lookup.
func RecordCacheLookup(ctx context.Context, hit bool) {
	stats.RecordWithTags(ctx,
		[]tag.Mutator{tag.Upsert(keyCacheHit, strconv.FormatBool(hit))},
		cacheResults.M(1))
}

// RecordArtifact records an emitted artifact of the given kind and size.
func RecordArtifact(ctx context.Context, kind string, size int) {
	stats.RecordWithTags(ctx,
		[]tag.Mutator{tag.Upsert(keyKind, kind)},
		artifactBytes.M(int64(size)))
}

// Dump writes the current data of the given views to w, one row per line.
func Dump(w io.Writer, views ...*view.View) error {
	if len(views) == 0 {
		views = Views
	}
	for _, v := range views {
		rows, err := view.RetrieveData(v.Name)
		if err != nil {
			return err
		}
		var lines []string
		for _, row := range rows {
			var tags []string
			for _, t := range row.Tags {
				tags = append(tags, t.Key.Name()+"="+t.Value)
			}
			lines = append(lines, fmt.Sprintf("%s{%s} %s", v.Name, strings.Join(tags, ","), formatData(row.Data)))
		}
		sort.Strings(lines)
		for _, l := range lines {
			if _, err := fmt.Fprintln(w, l); err != nil {
				return err
			}
		}
	}
	return nil
}

func formatData(d view.AggregationData) string {
	switch d := d.(type) {
	case *view.CountData:
		return strconv.FormatInt(d.Value, 10)
	case *view.SumData:
		return strconv.FormatFloat(d.Value, 'f', -1, 64)
	case *view.DistributionData:
		return fmt.Sprintf("count=%d mean=%.2fms max=%.2fms", d.Count, d.Mean, d.Max)
	case *view.LastValueData:
		return strconv.FormatFloat(d.Value, 'f', -1, 64)
	}
	return fmt.Sprint(d)
}
