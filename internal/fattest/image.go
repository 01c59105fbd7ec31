// Package fattest builds FAT32 images in memory for tests.
//
// A FAT32 volume needs at least 65525 clusters, so images are sparse: only
// written ranges are stored and everything else reads as zero.
package fattest

import (
	"io"
	"sort"
	"sync"
)

// Image is a sparse in-memory disk image. It is safe for concurrent use.
type Image struct {
	mu     sync.RWMutex
	chunks map[int64][]byte
	size   int64
}

const chunkSize = 4096

func NewImage(size int64) *Image {
	return &Image{
		chunks: make(map[int64][]byte),
		size:   size,
	}
}

// Size is the logical size of the image.
func (img *Image) Size() int64 {
	return img.size
}

func (img *Image) ReadAt(p []byte, off int64) (int, error) {
	img.mu.RLock()
	defer img.mu.RUnlock()

	if off >= img.size {
		return 0, io.EOF
	}

	n := 0
	for n < len(p) && off+int64(n) < img.size {
		pos := off + int64(n)
		index, inner := pos/chunkSize, pos%chunkSize

		end := int64(len(p) - n)
		if end > chunkSize-inner {
			end = chunkSize - inner
		}
		if end > img.size-pos {
			end = img.size - pos
		}

		if chunk, ok := img.chunks[index]; ok {
			copy(p[n:n+int(end)], chunk[inner:inner+end])
		} else {
			for i := n; i < n+int(end); i++ {
				p[i] = 0
			}
		}
		n += int(end)
	}

	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// WriteAt stores p at off. The image grows if needed.
func (img *Image) WriteAt(p []byte, off int64) (int, error) {
	img.mu.Lock()
	defer img.mu.Unlock()

	for n := 0; n < len(p); {
		pos := off + int64(n)
		index, inner := pos/chunkSize, pos%chunkSize

		chunk, ok := img.chunks[index]
		if !ok {
			chunk = make([]byte, chunkSize)
			img.chunks[index] = chunk
		}
		n += copy(chunk[inner:], p[n:])
	}

	if end := off + int64(len(p)); end > img.size {
		img.size = end
	}
	return len(p), nil
}

// Bytes materializes the image up to the end of the last written chunk.
// Reading past the end of the result behaves as reading zeros as long as
// only unwritten areas are touched, which is enough for images which are
// not read past their allocated clusters.
func (img *Image) Bytes() []byte {
	img.mu.RLock()
	defer img.mu.RUnlock()

	indexes := make([]int64, 0, len(img.chunks))
	for index := range img.chunks {
		indexes = append(indexes, index)
	}
	sort.Slice(indexes, func(i, j int) bool { return indexes[i] < indexes[j] })

	if len(indexes) == 0 {
		return nil
	}

	end := (indexes[len(indexes)-1] + 1) * chunkSize
	if end > img.size {
		end = img.size
	}

	result := make([]byte, end)
	for _, index := range indexes {
		copy(result[index*chunkSize:], img.chunks[index])
	}
	return result
}
