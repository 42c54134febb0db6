package prompt

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"sync"

	"github.com/hajimehoshi/go-mp3"

	"github.com/MrWong99/vozbraille/pkg/audio"
)

// ErrClipNotFound is returned when no clip file exists for a prompt id.
var ErrClipNotFound = errors.New("prompt: clip not found")

// ClipLibrary loads prebuilt prompt clips named "<id>.mp3" from a file
// system and caches the decoded PCM. It is safe for concurrent use.
type ClipLibrary struct {
	fsys fs.FS

	mu    sync.Mutex
	cache map[ID]audio.Clip
}

// NewClipLibrary returns a library reading from fsys. A nil fsys yields a
// library that only serves clips registered with [ClipLibrary.Add].
func NewClipLibrary(fsys fs.FS) *ClipLibrary {
	return &ClipLibrary{fsys: fsys, cache: make(map[ID]audio.Clip)}
}

// Add registers a decoded clip for id, replacing any cached one.
func (l *ClipLibrary) Add(id ID, clip audio.Clip) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cache[id] = clip
}

// Load returns the clip for id, decoding it on first use.
func (l *ClipLibrary) Load(id ID) (audio.Clip, error) {
	l.mu.Lock()
	clip, ok := l.cache[id]
	l.mu.Unlock()
	if ok {
		return clip, nil
	}
	if l.fsys == nil {
		return audio.Clip{}, fmt.Errorf("%w: %s", ErrClipNotFound, id)
	}

	f, err := l.fsys.Open(string(id) + ".mp3")
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return audio.Clip{}, fmt.Errorf("%w: %s", ErrClipNotFound, id)
		}
		return audio.Clip{}, fmt.Errorf("prompt: open clip %s: %w", id, err)
	}
	defer f.Close()

	clip, err = decodeMP3(f)
	if err != nil {
		return audio.Clip{}, fmt.Errorf("prompt: decode clip %s: %w", id, err)
	}

	l.mu.Lock()
	l.cache[id] = clip
	l.mu.Unlock()
	return clip, nil
}

// Preload decodes the given clips up front and returns the ids that are
// missing. Decoding errors other than a missing file are returned.
func (l *ClipLibrary) Preload(ids ...ID) (missing []ID, err error) {
	var errs []error
	for _, id := range ids {
		if _, lerr := l.Load(id); lerr != nil {
			if errors.Is(lerr, ErrClipNotFound) {
				missing = append(missing, id)
				continue
			}
			errs = append(errs, lerr)
		}
	}
	return missing, errors.Join(errs...)
}

// decodeMP3 decodes a whole mp3 stream. go-mp3 always produces 16-bit
// little-endian stereo.
func decodeMP3(r io.Reader) (audio.Clip, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return audio.Clip{}, err
	}
	pcm, err := io.ReadAll(dec)
	if err != nil {
		return audio.Clip{}, err
	}
	return audio.Clip{PCM: pcm, SampleRate: dec.SampleRate(), Channels: 2}, nil
}
