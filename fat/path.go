package fat

import "strings"

// lookupResult is what a directory search yields: either a matched entry
// (file or directory) or, on failure, the parent cluster a prospective
// create() can use.
type lookupResult struct {
	found bool

	// Set when found.
	entry     rawDirent
	dirSector SectorID // absolute sector holding the short entry
	dirOffset uint32   // byte offset of the short entry within that sector
	cluster   ClusterID
	isDir     bool

	// Set on a failed terminal lookup, so create() can proceed.
	parentCluster    ClusterID
	parentClusterSet bool
}

// splitPath breaks an absolute, slash-separated path into its non-empty
// components.
func splitPath(path string) []string {
	parts := strings.Split(path, "/")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// searchDirectory scans one directory (by its cluster, or FAT16 root
// sentinel 0) for a slot whose short or reassembled-long name matches name,
// matching wildcards, case-insensitive, skipping "." self entries
// and volume labels.
func (v *Volume) searchDirectory(dirCluster ClusterID, name string) (lookupResult, error) {
	it := newDirIterator(v, dirCluster)
	slot, err := it.first()
	if err != nil {
		return lookupResult{}, err
	}

	var staging lfnStaging
	staging.reset()

	for {
		if isLastSlot(slot) {
			return lookupResult{}, nil
		}

		if !isFreeSlot(slot) {
			raw := decodeRawDirent(slot)

			if raw.isLongName() {
				staging.absorb(decodeLongDirent(slot))
			} else if !raw.isVolumeID() && raw.shortDisplayName() != "." && raw.shortDisplayName() != ".." {
				matched := matchWildcard(name, raw.shortDisplayName())
				if !matched && staging.valid {
					if longName := staging.staged(); longName != "" {
						matched = matchWildcard(name, longName)
					}
				}
				staging.reset()

				if matched {
					return lookupResult{
						found:     true,
						entry:     raw,
						dirSector: it.dirSector,
						dirOffset: it.byteOffset,
						cluster:   raw.cluster(),
						isDir:     raw.isDir(),
					}, nil
				}
			} else {
				staging.reset()
			}
		}

		slot, err = it.next()
		if err != nil {
			return lookupResult{}, err
		}
	}
}

// resolvePath walks path's components from the root, searching each
// directory in turn. A missing non-terminal component fails
// without a usable parent pointer; a non-terminal matched to a non-directory
// also fails. The terminal component may be a file or a directory.
func (v *Volume) resolvePath(path string) (lookupResult, error) {
	parts := splitPath(path)
	if len(parts) == 0 {
		// The root itself.
		return lookupResult{
			found:   true,
			cluster: v.rootDirCluster,
			isDir:   true,
		}, nil
	}

	currentDir := v.rootDirCluster
	for i, part := range parts {
		isTerminal := i == len(parts)-1

		result, err := v.searchDirectory(currentDir, part)
		if err != nil {
			return lookupResult{}, err
		}

		if !result.found {
			if isTerminal {
				return lookupResult{parentCluster: currentDir, parentClusterSet: true}, nil
			}
			// A missing intermediate component invalidates the parent
			// pointer entirely: there is nowhere sensible left to create
			// into.
			return lookupResult{}, nil
		}

		if !isTerminal && !result.isDir {
			return lookupResult{}, nil
		}

		if isTerminal {
			return result, nil
		}
		currentDir = result.cluster
	}

	return lookupResult{}, nil
}

// splitShortName splits a final path component into FAT 8.3 base/extension
// fields for create(). Long names are truncated; writing a real
// long-name entry is explicitly not implemented.
func splitShortName(component string) (base, ext string, needsLFN bool) {
	dot := strings.LastIndex(component, ".")
	var rawBase, rawExt string
	if dot < 0 {
		rawBase = component
	} else {
		rawBase, rawExt = component[:dot], component[dot+1:]
	}

	needsLFN = len(rawBase) > 8 || len(rawExt) > 3 || strings.ContainsAny(component, " +,;=[]")

	if len(rawBase) > 8 {
		rawBase = rawBase[:8]
	}
	if len(rawExt) > 3 {
		rawExt = rawExt[:3]
	}
	return rawBase, rawExt, needsLFN
}
