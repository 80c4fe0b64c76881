package accel

import (
	"context"
	"io"
	"os"
	"slices"

	"github.com/tanq16/accel/internal/utils"
)

// ReassemblyBufferSize bounds memory used while concatenating segments.
const ReassemblyBufferSize = 512 * 1024

// Reassemble appends the segment files to outputPath in ascending range
// index order and deletes each segment once copied. On failure the partial
// output and any remaining segment files are removed.
func Reassemble(ctx context.Context, outputPath string, segments []SegmentResult) (int64, error) {
	log := utils.LoggerFrom(ctx, "reassembler")
	ordered := slices.Clone(segments)
	slices.SortFunc(ordered, func(a, b SegmentResult) int {
		return a.Spec.Index - b.Spec.Index
	})

	destFile, err := os.OpenFile(outputPath, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		discardSegments(ordered)
		return 0, &IOError{Op: "open", Path: outputPath, Err: err}
	}
	fail := func(ioErr *IOError, next int) (int64, error) {
		destFile.Close()
		os.Remove(outputPath)
		discardSegments(ordered[next:])
		return 0, ioErr
	}

	buffer := make([]byte, ReassemblyBufferSize)
	var totalWritten int64
	for i, seg := range ordered {
		if err := ctx.Err(); err != nil {
			return fail(&IOError{Op: "append", Path: outputPath, Err: err}, i)
		}
		written, ioErr := appendSegment(destFile, seg, buffer)
		if ioErr != nil {
			return fail(ioErr, i)
		}
		totalWritten += written
		if err := os.Remove(seg.Path); err != nil {
			return fail(&IOError{Op: "remove", Path: seg.Path, Err: err}, i+1)
		}
		log.Debug().Str("op", "reassemble").Int("segment", seg.Spec.Index).Int64("written", written).Msg("Segment appended")
	}
	if err := destFile.Sync(); err != nil {
		return fail(&IOError{Op: "sync", Path: outputPath, Err: err}, len(ordered))
	}
	if err := destFile.Close(); err != nil {
		os.Remove(outputPath)
		return 0, &IOError{Op: "close", Path: outputPath, Err: err}
	}
	return totalWritten, nil
}

func appendSegment(dest io.Writer, seg SegmentResult, buffer []byte) (int64, *IOError) {
	segFile, err := os.Open(seg.Path)
	if err != nil {
		return 0, &IOError{Op: "open", Path: seg.Path, Err: err}
	}
	defer segFile.Close()
	// hide ReadFrom/WriteTo so the bounded buffer is actually used
	written, err := io.CopyBuffer(struct{ io.Writer }{dest}, struct{ io.Reader }{segFile}, buffer)
	if err != nil {
		return written, &IOError{Op: "copy", Path: seg.Path, Err: err}
	}
	return written, nil
}

func discardSegments(segments []SegmentResult) {
	for _, seg := range segments {
		if seg.Path != "" {
			os.Remove(seg.Path)
		}
	}
}
