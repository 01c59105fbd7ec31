package rofat

import (
	"fmt"
	"io"

	"github.com/aligator/rofat/checkpoint"
)

// ReadContent reads length bytes at offset from the file starting at cluster start.
// The range is clamped to fileSize.
//
// If the chain ends before the range is complete, the bytes read so far are
// returned without an error as the file is just truncated. If the chain is
// corrupt, they are returned together with ErrCorruptChain.
func (fs *Fs) ReadContent(start ClusterID, fileSize int64, offset int64, length int64) ([]byte, error) {
	if offset < 0 || length < 0 {
		return nil, checkpoint.From(fmt.Errorf("invalid range: offset %d, length %d", offset, length))
	}

	if offset >= fileSize || length == 0 {
		return nil, nil
	}
	if length > fileSize-offset {
		length = fileSize - offset
	}

	clusterSize := fs.geometry.ClusterSize

	it := fs.Chain(start)
	if !it.Next() {
		return nil, it.Err()
	}

	// Skip all clusters before the one containing offset.
	for offset >= clusterSize {
		offset -= clusterSize
		if !it.Next() {
			return nil, it.Err()
		}
	}

	result := make([]byte, length)
	read := int64(0)
	for {
		n := clusterSize - offset
		if n > length-read {
			n = length - read
		}

		err := readFull(fs.reader, result[read:read+n], fs.geometry.ClusterOffset(it.Cluster())+offset)
		if err != nil {
			return result[:read], err
		}
		read += n
		offset = 0

		if read == length {
			return result, nil
		}

		if !it.Next() {
			return result[:read], it.Err()
		}
	}
}

// readFileAt implements fatFileFs.
// It returns io.EOF if less than readSize bytes are available until the end of the file.
func (fs *Fs) readFileAt(cluster ClusterID, fileSize int64, offset int64, readSize int64) ([]byte, error) {
	data, err := fs.ReadContent(cluster, fileSize, offset, readSize)
	if err != nil {
		return data, err
	}

	if int64(len(data)) == readSize {
		return data, nil
	}
	if offset+int64(len(data)) >= fileSize {
		return data, io.EOF
	}
	return data, checkpoint.Wrap(io.ErrUnexpectedEOF, ErrReadFile)
}
