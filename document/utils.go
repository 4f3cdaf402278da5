// Package document implements the DocumentEngine half of the storage model
// (§3, §4.6-§4.9): NodeDocument's system keys, the commit and visibility
// pipeline, splitting, and unmerged-branch bookkeeping.
package document

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/contentgraph/corestore/revision"
)

// PathDepth returns the PathUtils depth of path: the number of non-root
// path segments, matching the "<depth>:<path>" _id encoding (§3).
func PathDepth(path string) int {
	path = strings.Trim(path, "/")
	if path == "" {
		return 0
	}
	return strings.Count(path, "/") + 1
}

// IdFor returns the primary document id for path: "<depth>:<path>" (§3).
func IdFor(path string) string {
	return fmt.Sprintf("%d:%s", PathDepth(path), path)
}

// PreviousIdFor returns the id of the previous-document split off for
// revision window ending at high, per §6: "<depth>:p/<parent>/<high-rev-string>",
// where depth is 2 + depth(parent).
func PreviousIdFor(parentId string, high revision.Revision) string {
	depth := parentDepth(parentId) + 2
	return fmt.Sprintf("%d:p/%s/%s", depth, parentId, high.String())
}

// parentDepth extracts the numeric depth prefix of a document id of the
// form "<depth>:...".
func parentDepth(id string) int {
	idx := strings.IndexByte(id, ':')
	if idx < 0 {
		return 0
	}
	d, err := strconv.Atoi(id[:idx])
	if err != nil {
		return 0
	}
	return d
}

// PathOf extracts the path component of a primary document id ("<depth>:<path>").
// It returns false for previous-document ids (those encode a window, not a
// path).
func PathOf(id string) (string, bool) {
	idx := strings.IndexByte(id, ':')
	if idx < 0 {
		return "", false
	}
	rest := id[idx+1:]
	if strings.HasPrefix(rest, "p/") {
		return "", false
	}
	return rest, true
}

// ParentPath returns the parent path of path ("" for the root).
func ParentPath(path string) string {
	path = strings.TrimRight(path, "/")
	idx := strings.LastIndexByte(path, '/')
	if idx < 0 {
		return ""
	}
	if idx == 0 {
		return "/"
	}
	return path[:idx]
}

// IGNORE_ON_SPLIT names the system keys that are never split off into a
// previous document (§4.8).
var IgnoreOnSplit = map[string]bool{
	"_id":       true,
	"_modCount": true,
	"_modified": true,
	"_prev":     true,
	"_lastRev":  true,
}

// RevisionsSplitOffSize is the default |_revisions|+|_commitRoot| threshold
// that triggers a split (§4.8).
const RevisionsSplitOffSize = 100

// ForceSplitThresholdBytes is the default estimated-document-size threshold
// that triggers a split regardless of entry count (§4.8).
const ForceSplitThresholdBytes = 16 * 1024

// ModifiedResolutionMillis is the bucket width _modified timestamps are
// rounded to (§3: "5-second-resolution timestamp").
const ModifiedResolutionMillis = 5000

// ModifiedBucket rounds a millisecond timestamp down to the _modified
// resolution.
func ModifiedBucket(millis int64) int64 {
	return millis - millis%ModifiedResolutionMillis
}
