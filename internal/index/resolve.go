package index

import (
	"sort"
	"strings"

	"github.com/ragit-kb/ragit/internal/store"
	"github.com/ragit-kb/ragit/internal/uid"
)

// Resolve answers a uid.Query against a knowledge base: a query text that
// looks like hex is matched as a uid prefix (1 to 64 hex characters) against
// chunks/images/file uids; any query text is also matched as a path
// substring against processed and staged files when those kinds are
// requested.
func Resolve(blobs *store.BlobStore, meta *Metadata, q uid.Query) (uid.Result, error) {
	var res uid.Result

	isHexPrefix := uid.IsValidPrefix(q.Text)

	if q.SearchChunk && isHexPrefix {
		keys, err := blobs.List(store.KindChunk, ".chunk")
		if err != nil {
			return res, err
		}
		for _, k := range keys {
			if strings.HasPrefix(k, q.Text) {
				if u, perr := uid.Parse(k); perr == nil {
					res.Chunks = append(res.Chunks, u)
				}
			}
		}
	}

	if q.SearchImage && isHexPrefix {
		keys, err := blobs.List(store.KindImage, ".png")
		if err != nil {
			return res, err
		}
		for _, k := range keys {
			if strings.HasPrefix(k, q.Text) {
				if u, perr := uid.Parse(k); perr == nil {
					res.Images = append(res.Images, u)
				}
			}
		}
	}

	if q.SearchFilePath || q.SearchFileUid {
		paths := make([]string, 0, len(meta.ProcessedFiles))
		for p := range meta.ProcessedFiles {
			paths = append(paths, p)
		}
		sort.Strings(paths)
		for _, p := range paths {
			hexUID := meta.ProcessedFiles[p]
			matchPath := q.SearchFilePath && strings.Contains(p, q.Text)
			matchUID := q.SearchFileUid && isHexPrefix && strings.HasPrefix(hexUID, q.Text)
			if !matchPath && !matchUID {
				continue
			}
			u, err := uid.Parse(hexUID)
			if err != nil {
				continue
			}
			res.ProcessedFiles = append(res.ProcessedFiles, uid.ProcessedFile{Path: p, Uid: u})
		}
	}

	if q.SearchStagedFile {
		for _, p := range meta.StagedFiles {
			if strings.Contains(p, q.Text) {
				res.StagedFiles = append(res.StagedFiles, p)
			}
		}
	}

	return res, nil
}
