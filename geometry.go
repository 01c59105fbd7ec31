package rofat

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/aligator/rofat/checkpoint"
)

const (
	// minFAT32Clusters is the smallest data cluster count of a FAT32 volume.
	// Anything below is FAT12 or FAT16.
	minFAT32Clusters = 65525

	// maxFAT32Clusters keeps the highest cluster number below the reserved values.
	maxFAT32Clusters = 0x0FFFFFF6 - 1

	// activeFATMirroringOff is set in ExtFlags if only the FAT in the low bits is in use.
	activeFATMirroringOff uint16 = 0x80
	activeFATMask         uint16 = 0x0F
)

// Geometry holds the layout of a FAT32 volume as read from its boot sector.
// It is immutable after loading.
type Geometry struct {
	BytesPerSector    uint16
	SectorsPerCluster uint8
	ReservedSectors   uint16
	NumFATs           uint8
	SectorsPerFAT     uint32
	RootCluster       ClusterID
	TotalSectors      uint32
	ActiveFAT         uint8
	FSInfoSector      uint16
	Media             byte
	VolumeID          uint32
	VolumeLabel       string
	OEMName           string

	// FATOffset is the byte offset of the FAT in use.
	FATOffset int64
	// DataOffset is the byte offset of cluster 2.
	DataOffset int64
	// ClusterSize in bytes.
	ClusterSize int64
	// TotalClusters is the number of data clusters. Valid cluster numbers are 2..TotalClusters+1.
	TotalClusters uint32
}

// LoadGeometry parses and validates the boot sector of a FAT32 volume.
// raw has to contain at least the first 90 bytes of sector 0.
func LoadGeometry(raw []byte) (Geometry, error) {
	return loadGeometry(raw, false)
}

// LoadGeometrySkipChecks works like LoadGeometry but skips the validations which
// are not needed to read the volume safely. Use with caution!
func LoadGeometrySkipChecks(raw []byte) (Geometry, error) {
	return loadGeometry(raw, true)
}

func invalid(format string, a ...interface{}) error {
	return checkpoint.Wrap(fmt.Errorf(format, a...), ErrInvalidFilesystem)
}

func loadGeometry(raw []byte, skipChecks bool) (Geometry, error) {
	if len(raw) < bootSectorSize {
		return Geometry{}, invalid("boot sector too short: %d bytes", len(raw))
	}

	bpb := BPB{}
	if err := binary.Read(bytes.NewReader(raw), binary.LittleEndian, &bpb); err != nil {
		return Geometry{}, checkpoint.Wrap(err, ErrInvalidFilesystem)
	}

	fat32 := FAT32SpecificData{}
	if err := binary.Read(bytes.NewReader(bpb.FATSpecificData[:]), binary.LittleEndian, &fat32); err != nil {
		return Geometry{}, checkpoint.Wrap(err, ErrInvalidFilesystem)
	}

	if !skipChecks {
		if err := strictChecks(bpb, fat32); err != nil {
			return Geometry{}, err
		}
	}

	// These values are divisors or multipliers below, so they are always checked.
	if bpb.BytesPerSector == 0 {
		return Geometry{}, invalid("bytes per sector is 0")
	}
	if bpb.SectorsPerCluster == 0 {
		return Geometry{}, invalid("sectors per cluster is 0")
	}
	if bpb.NumFATs == 0 {
		return Geometry{}, invalid("no FAT")
	}

	// FAT32 has no fixed root directory.
	if bpb.RootEntryCount != 0 {
		return Geometry{}, invalid("root entry count is %d but has to be 0 on FAT32", bpb.RootEntryCount)
	}
	rootDirSectors := (uint64(bpb.RootEntryCount)*dirEntrySize + uint64(bpb.BytesPerSector) - 1) / uint64(bpb.BytesPerSector)

	fatSize := uint64(bpb.FATSize16)
	if fatSize == 0 {
		fatSize = uint64(fat32.FatSize)
	}
	if fatSize == 0 {
		return Geometry{}, invalid("FAT size is 0")
	}

	totalSectors := uint64(bpb.TotalSectors16)
	if totalSectors == 0 {
		totalSectors = uint64(bpb.TotalSectors32)
	}

	// All sizes are widened to 64 bit so that no field combination can overflow.
	metaSectors := uint64(bpb.ReservedSectorCount) + uint64(bpb.NumFATs)*fatSize + rootDirSectors
	if metaSectors >= totalSectors {
		return Geometry{}, invalid("%d total sectors do not fit the %d metadata sectors", totalSectors, metaSectors)
	}

	clusters := (totalSectors - metaSectors) / uint64(bpb.SectorsPerCluster)
	if clusters < minFAT32Clusters {
		return Geometry{}, invalid("%d clusters are too few for FAT32", clusters)
	}
	if clusters > maxFAT32Clusters {
		return Geometry{}, invalid("%d clusters are too many for FAT32", clusters)
	}

	// Entries 0 and 1 of the FAT are reserved.
	fatEntries := fatSize * uint64(bpb.BytesPerSector) / 4
	if clusters+2 > fatEntries {
		if !skipChecks {
			return Geometry{}, invalid("FAT with %d entries is too small for %d clusters", fatEntries, clusters)
		}
		// Without checks the clusters not covered by the FAT are ignored,
		// but what remains still has to be a FAT32 volume.
		if fatEntries < minFAT32Clusters+2 {
			return Geometry{}, invalid("FAT with %d entries is too small for FAT32", fatEntries)
		}
		clusters = fatEntries - 2
	}

	g := Geometry{
		BytesPerSector:    bpb.BytesPerSector,
		SectorsPerCluster: bpb.SectorsPerCluster,
		ReservedSectors:   bpb.ReservedSectorCount,
		NumFATs:           bpb.NumFATs,
		SectorsPerFAT:     uint32(fatSize),
		RootCluster:       fat32.RootCluster & clusterMask,
		TotalSectors:      uint32(totalSectors),
		FSInfoSector:      fat32.FSInfo,
		Media:             bpb.Media,
		VolumeID:          fat32.BSVolumeID,
		VolumeLabel:       strings.TrimRight(string(fat32.BSVolumeLabel[:]), " \x00"),
		OEMName:           strings.TrimRight(string(bpb.BSOEMName[:]), " \x00"),
		TotalClusters:     uint32(clusters),
	}

	if fat32.ExtFlags&activeFATMirroringOff != 0 {
		g.ActiveFAT = uint8(fat32.ExtFlags & activeFATMask)
		if g.ActiveFAT >= g.NumFATs {
			return Geometry{}, invalid("active FAT %d does not exist", g.ActiveFAT)
		}
	}

	sectorSize := int64(bpb.BytesPerSector)
	g.FATOffset = (int64(bpb.ReservedSectorCount) + int64(g.ActiveFAT)*int64(fatSize)) * sectorSize
	g.DataOffset = int64(metaSectors) * sectorSize
	g.ClusterSize = int64(bpb.SectorsPerCluster) * sectorSize

	if !g.Valid(g.RootCluster) {
		return Geometry{}, invalid("root cluster %d is outside of the volume", g.RootCluster)
	}

	return g, nil
}

// strictChecks validates the boot sector fields which a standard conforming
// FAT32 volume always has right.
func strictChecks(bpb BPB, fat32 FAT32SpecificData) error {
	// Check for valid jump instructions
	if !(bpb.BSJumpBoot[0] == 0xEB && bpb.BSJumpBoot[2] == 0x90) && !(bpb.BSJumpBoot[0] == 0xE9) {
		return invalid("no valid jump instructions at the beginning")
	}

	// FAT only supports 512, 1024, 2048 and 4096
	switch bpb.BytesPerSector {
	case 512, 1024, 2048, 4096:
	default:
		return invalid("invalid sector size %d", bpb.BytesPerSector)
	}

	// Sectors per cluster has to be a power of two and greater than 0.
	// Also the whole cluster size should not be more than 32K.
	spc := bpb.SectorsPerCluster
	if spc == 0 || spc&(spc-1) != 0 || uint32(bpb.BytesPerSector)*uint32(spc) > 32*1024 {
		return invalid("invalid sectors per cluster %d", spc)
	}

	// FAT32 typically uses 32 reserved sectors, but never 0 as the boot sector is one of them.
	if bpb.ReservedSectorCount == 0 {
		return invalid("invalid reserved sector count")
	}

	if bpb.NumFATs == 0 {
		return invalid("invalid number of FATs")
	}

	if bpb.Media != 0xF0 && bpb.Media < 0xF8 {
		return invalid("invalid media value %#x", bpb.Media)
	}

	if bpb.TotalSectors16 != 0 || bpb.TotalSectors32 == 0 {
		return invalid("FAT32 has to use the 32 bit total sector count")
	}

	if bpb.FATSize16 != 0 || fat32.FatSize == 0 {
		return invalid("FAT32 has to use the 32 bit FAT size")
	}

	return nil
}

// Valid reports whether c addresses a data cluster of the volume.
func (g Geometry) Valid(c ClusterID) bool {
	return c >= firstDataCluster && uint64(c) <= uint64(g.TotalClusters)+1
}

// ClusterOffset returns the byte offset of a data cluster.
// c has to be valid.
func (g Geometry) ClusterOffset(c ClusterID) int64 {
	return g.DataOffset + int64(c-firstDataCluster)*g.ClusterSize
}

// FATEntryOffset returns the byte offset of the FAT entry for c.
func (g Geometry) FATEntryOffset(c ClusterID) int64 {
	return g.FATOffset + int64(c)*4
}

// Size of the data region in bytes.
func (g Geometry) Size() int64 {
	return int64(g.TotalClusters) * g.ClusterSize
}
