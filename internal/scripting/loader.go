package scripting

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"
	"golang.org/x/crypto/blake2b"
)

// Blob is one script source as delivered by the asset layer.
type Blob struct {
	Name   string // slash-separated, e.g. "sp/helloworld/main.lua"
	Data   []byte
	Digest [blake2b.Size256]byte
}

func NewBlob(name string, data []byte) Blob {
	return Blob{
		Name:   path.Clean(filepath.ToSlash(name)),
		Data:   data,
		Digest: blake2b.Sum256(data),
	}
}

// Namespace is the table path the script is loaded into: the name without
// its extension.
func (b Blob) Namespace() string {
	return strings.TrimSuffix(b.Name, path.Ext(b.Name))
}

// ShortDigest is a log-friendly prefix of the content digest.
func (b Blob) ShortDigest() string {
	return hex.EncodeToString(b.Digest[:6])
}

// DirSource reads every .lua file under dir, sorted by name. A missing
// directory yields no blobs.
func DirSource(dir string) ([]Blob, error) {
	var blobs []Blob
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == dir && os.IsNotExist(err) {
				return fs.SkipAll
			}
			return err
		}
		if d.IsDir() || filepath.Ext(p) != ".lua" {
			return nil
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		blobs = append(blobs, NewBlob(rel, data))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read scripts %s: %w", dir, err)
	}
	sort.Slice(blobs, func(i, j int) bool { return blobs[i].Name < blobs[j].Name })
	return blobs, nil
}

// Compile checks that a blob parses and compiles without loading it.
func Compile(b Blob) (*lua.FunctionProto, error) {
	chunk, err := parse.Parse(bytes.NewReader(b.Data), b.Name)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", b.Name, err)
	}
	proto, err := lua.Compile(chunk, b.Name)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", b.Name, err)
	}
	return proto, nil
}

// Overlay merges patch over base: every patch blob, then the base blobs
// whose name the patch does not provide.
func Overlay(base, patch []Blob) []Blob {
	out := make([]Blob, 0, len(base)+len(patch))
	seen := make(map[string]struct{}, len(patch))
	for _, b := range patch {
		seen[b.Name] = struct{}{}
		out = append(out, b)
	}
	for _, b := range base {
		if _, ok := seen[b.Name]; ok {
			continue
		}
		out = append(out, b)
	}
	return out
}
