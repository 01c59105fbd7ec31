package rofat

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aligator/rofat/internal/fattest"
)

type failingReader struct{}

var errDevice = errors.New("device gone")

func (failingReader) ReadAt(p []byte, off int64) (int, error) {
	return 0, errDevice
}

func Test_fatEntry(t *testing.T) {
	tests := []struct {
		name         string
		e            fatEntry
		wantValue    uint32
		wantFree     bool
		wantNext     bool
		wantReserved bool
		wantBad      bool
		wantEOF      bool
	}{
		{name: "free", e: 0, wantValue: 0, wantFree: true},
		{name: "next cluster", e: 0x00000009, wantValue: 9, wantNext: true},
		{name: "top bits are ignored", e: 0xF0000009, wantValue: 9, wantNext: true},
		{name: "reserved", e: 0x0FFFFFF0, wantValue: 0x0FFFFFF0, wantReserved: true},
		{name: "bad", e: 0x0FFFFFF7, wantValue: 0x0FFFFFF7, wantBad: true},
		{name: "lowest end of chain", e: 0x0FFFFFF8, wantValue: 0x0FFFFFF8, wantEOF: true},
		{name: "end of chain", e: 0xFFFFFFFF, wantValue: 0x0FFFFFFF, wantEOF: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantValue, tt.e.Value())
			assert.Equal(t, tt.wantFree, tt.e.IsFree())
			assert.Equal(t, tt.wantNext, tt.e.IsNextCluster())
			assert.Equal(t, tt.wantReserved, tt.e.IsReserved())
			assert.Equal(t, tt.wantBad, tt.e.IsBad())
			assert.Equal(t, tt.wantEOF, tt.e.IsEOF())
		})
	}
}

func TestFs_Chain(t *testing.T) {
	tests := []struct {
		name    string
		fat     map[uint32]uint32
		start   ClusterID
		want    []ClusterID
		wantErr error
	}{
		{
			name:  "single cluster",
			fat:   map[uint32]uint32{5: fattest.EndOfChain},
			start: 5,
			want:  []ClusterID{5},
		},
		{
			name:  "fragmented chain",
			fat:   map[uint32]uint32{5: 9, 9: 2},
			start: 5,
			want:  []ClusterID{5, 9, 2},
		},
		{
			name:  "reserved top bits are masked",
			fat:   map[uint32]uint32{5: 0xF0000009, 9: 0xFFFFFFF8},
			start: 5,
			want:  []ClusterID{5, 9},
		},
		{
			name:    "cycle",
			fat:     map[uint32]uint32{5: 9, 9: 5},
			start:   5,
			wantErr: ErrCorruptChain,
		},
		{
			name:    "link to a free cluster",
			fat:     map[uint32]uint32{5: 0},
			start:   5,
			want:    []ClusterID{5},
			wantErr: ErrCorruptChain,
		},
		{
			name:    "link to reserved cluster 1",
			fat:     map[uint32]uint32{5: 9, 9: 1},
			start:   5,
			want:    []ClusterID{5, 9},
			wantErr: ErrCorruptChain,
		},
		{
			name:    "link to a bad cluster",
			fat:     map[uint32]uint32{5: 0x0FFFFFF7},
			start:   5,
			want:    []ClusterID{5},
			wantErr: ErrCorruptChain,
		},
		{
			name:    "link behind the last cluster",
			fat:     map[uint32]uint32{5: 65602},
			start:   5,
			want:    []ClusterID{5},
			wantErr: ErrCorruptChain,
		},
		{
			name:    "start at cluster 0",
			start:   0,
			wantErr: ErrCorruptChain,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			volume := fattest.New().Build()
			for c, v := range tt.fat {
				volume.SetFAT(c, v)
			}
			fs, _ := testingNew(t, volume)

			got, err := fs.Chain(tt.start).Clusters()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}

			// A cycle visits every cluster of the volume before it is detected.
			if tt.name != "cycle" {
				assert.Equal(t, tt.want, got)
			} else {
				assert.Len(t, got, int(fs.Geometry().TotalClusters))
			}
		})
	}
}

func TestChainIter_restart(t *testing.T) {
	volume := fattest.New().Build()
	volume.SetFAT(5, 6)
	volume.SetFAT(6, 7)
	volume.SetFAT(7, fattest.EndOfChain)
	fs, _ := testingNew(t, volume)

	first, err := fs.Chain(5).Clusters()
	require.NoError(t, err)

	// A new iterator from a saved cluster continues independently.
	second, err := fs.Chain(first[1]).Clusters()
	require.NoError(t, err)

	assert.Equal(t, []ClusterID{5, 6, 7}, first)
	assert.Equal(t, []ClusterID{6, 7}, second)
}

func TestChainIter_readError(t *testing.T) {
	fs, _ := testingNew(t, fattest.New().Build(), WithFATCacheSize(0))
	fs.fat.reader = failingReader{}

	it := fs.Chain(2)
	require.True(t, it.Next())
	assert.False(t, it.Next())
	assert.ErrorIs(t, it.Err(), errDevice)
	assert.NotErrorIs(t, it.Err(), ErrCorruptChain)

	// Once stopped, the iterator stays stopped.
	assert.False(t, it.Next())
}

func TestChainIter_activeFAT(t *testing.T) {
	volume := fattest.New().Build()
	volume.SetFAT(5, fattest.EndOfChain)

	// Only the second FAT links 5 to 6.
	raw := make([]byte, 4)
	binary.LittleEndian.PutUint32(raw, 6)
	volume.WriteAt(raw, volume.FATOffset+int64(volume.FATSectors)*volume.SectorSize+5*4)
	volume.SetFAT(6, fattest.EndOfChain)

	flags := make([]byte, 2)
	binary.LittleEndian.PutUint16(flags, 0x80|1)
	volume.WriteAt(flags, 40)

	fs, _ := testingNew(t, volume)
	got, err := fs.Chain(5).Clusters()
	require.NoError(t, err)
	assert.Equal(t, []ClusterID{5, 6}, got)
}
