package scan

import (
	"encoding/binary"

	"github.com/coldtrove/poolscan/internal/cos"
	"github.com/coldtrove/poolscan/scanbook"
	"github.com/coldtrove/poolscan/scancore"
)

// The persisted scan record is a fixed-width array of uint64 (spec.md
// §6, SCAN_PHYS_NUMINTS) — encoding/binary is the natural fit, not an
// extensible schema library (see DESIGN.md).
const numInts = 21

func encodePhys(p *scancore.Phys) string {
	var ints [numInts]uint64
	ints[0] = uint64(p.Func)
	ints[1] = uint64(p.State)
	ints[2] = p.MinTxg
	ints[3] = p.MaxTxg
	ints[4] = p.CurMinTxg
	ints[5] = p.CurMaxTxg
	ints[6] = uint64(p.StartTime)
	ints[7] = uint64(p.EndTime)
	ints[8] = p.ToExamine
	ints[9] = p.Examined
	ints[10] = p.Processed
	ints[11] = p.Errors
	ints[12] = uint64(p.DDTClassMax)
	ints[13] = p.QueueObj
	ints[14] = p.Bookmark.ObjSet
	ints[15] = p.Bookmark.Object
	ints[16] = uint64(int64(p.Bookmark.Level))
	ints[17] = p.Bookmark.BlkID
	ints[18] = p.DDTBookmark.Cursor
	ints[19] = uint64(p.Flags)
	ints[20] = uint64(p.DDTBookmark.Class)

	buf := make([]byte, numInts*8)
	for i, v := range ints {
		binary.BigEndian.PutUint64(buf[i*8:], v)
	}
	return string(buf)
}

func decodePhys(raw string) (*scancore.Phys, error) {
	b := []byte(raw)
	if len(b) != numInts*8 {
		return nil, cos.IOErrorf("scan: persisted record has %d bytes, want %d", len(b), numInts*8)
	}
	var ints [numInts]uint64
	for i := range ints {
		ints[i] = binary.BigEndian.Uint64(b[i*8:])
	}

	p := &scancore.Phys{
		Func:        scancore.Func(ints[0]),
		State:       scancore.State(ints[1]),
		MinTxg:      ints[2],
		MaxTxg:      ints[3],
		CurMinTxg:   ints[4],
		CurMaxTxg:   ints[5],
		StartTime:   int64(ints[6]),
		EndTime:     int64(ints[7]),
		ToExamine:   ints[8],
		Examined:    ints[9],
		Processed:   ints[10],
		Errors:      ints[11],
		DDTClassMax: int(ints[12]),
		QueueObj:    ints[13],
		Bookmark: scanbook.Bookmark{
			ObjSet: ints[14],
			Object: ints[15],
			Level:  int(int64(ints[16])),
			BlkID:  ints[17],
		},
		// ChecksumType/Checksum are deliberately not round-tripped: the only
		// Index this repo ships (ddt.MemIndex) seeks purely by Class+Cursor,
		// so they carry no information Walk needs to resume correctly. A
		// persisted on-disk DDT would need them; that container is out of
		// scope (spec.md §1).
		DDTBookmark: scancore.DDTBookmark{
			Class:  int(ints[20]),
			Cursor: ints[18],
		},
		Flags: scancore.Flag(ints[19]),
	}
	return p, nil
}
