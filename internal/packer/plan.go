package packer

// Plan is the partitioning decision for a job.
type Plan struct {
	Policy Policy
	// Ceiling is the effective part size limit in bytes, 0 for PolicyNone.
	Ceiling int64
	// Clamped is set when the requested ceiling exceeded the system maximum.
	Clamped bool
	// EstimatedParts is a lower bound on the number of parts.
	EstimatedParts int
}

// PlanPartitions picks the policy for a job of totalSize source bytes. A nil
// requested ceiling yields PolicyNone; otherwise the ceiling is clamped to
// systemCeiling and mode selects between raw and entry-preserving splits.
func PlanPartitions(totalSize int64, requested *int64, systemCeiling int64, mode SplitMode) Plan {
	if requested == nil {
		return Plan{Policy: PolicyNone, EstimatedParts: 1}
	}

	p := Plan{Ceiling: *requested}
	if systemCeiling > 0 && p.Ceiling > systemCeiling {
		p.Ceiling = systemCeiling
		p.Clamped = true
	}

	switch mode {
	case SplitRaw:
		p.Policy = PolicyRawByteSplit
	default:
		p.Policy = PolicyEntryPreservingSplit
	}

	p.EstimatedParts = 1
	if p.Ceiling > 0 && totalSize > p.Ceiling {
		p.EstimatedParts = int((totalSize + p.Ceiling - 1) / p.Ceiling)
	}
	return p
}

// Group is the set of sources destined for one entry-preserving part.
type Group struct {
	Entries []SourceFileEntry
	// Names are the archive entry names, parallel to Entries.
	Names []string
	// PredictedSize is the archive size if every entry is read in full.
	PredictedSize int64
	// Oversized marks a group holding one source that alone exceeds the
	// ceiling.
	Oversized bool
}

// GroupEntries splits sources, in order, into archives no larger than
// ceiling. A new group starts whenever the next source would push the
// current one over the limit. A source that does not fit even on its own is
// placed alone in a group flagged Oversized.
func GroupEntries(sources []SourceFileEntry, ceiling int64) []Group {
	var (
		groups []Group
		cur    *Group
		sizer  zipSizer
		names  nameSet
	)
	flush := func() {
		if cur != nil && len(cur.Entries) > 0 {
			cur.PredictedSize = sizer.total()
			groups = append(groups, *cur)
		}
		cur = nil
	}

	for _, src := range sources {
		base := entryName(src)

		if cur != nil {
			if sizer.with(names.peek(base), src.Size) <= ceiling {
				name := names.claim(base)
				sizer.add(name, src.Size)
				cur.Entries = append(cur.Entries, src)
				cur.Names = append(cur.Names, name)
				continue
			}
			flush()
		}

		cur = &Group{}
		sizer = zipSizer{}
		names = nameSet{}
		name := names.claim(base)
		sizer.add(name, src.Size)
		cur.Entries = append(cur.Entries, src)
		cur.Names = append(cur.Names, name)

		if sizer.total() > ceiling {
			cur.Oversized = true
			flush()
		}
	}
	flush()
	return groups
}
