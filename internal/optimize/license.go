// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package optimize

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/google/licensecheck"
)

// Classify returns the sorted IDs of the licenses found in text.
func Classify(text []byte) []string {
	seen := map[string]bool{}
	var ids []string
	for _, m := range licensecheck.Scan(text).Match {
		if !seen[m.ID] {
			seen[m.ID] = true
			ids = append(ids, m.ID)
		}
	}
	sort.Strings(ids)
	return ids
}

// licenseFile returns the contents of a chunk's license file: a summary of
// the detected licenses followed by the comments themselves.
func licenseFile(comments []byte) []byte {
	var b bytes.Buffer
	if ids := Classify(comments); len(ids) > 0 {
		fmt.Fprintf(&b, "Detected licenses:")
		for _, id := range ids {
			fmt.Fprintf(&b, " %s", id)
		}
		b.WriteString("\n\n")
	}
	b.Write(bytes.TrimSpace(comments))
	b.WriteByte('\n')
	return b.Bytes()
}
