package profile

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ipfs/go-cid"
	"github.com/libp2p/go-libp2p/core/crypto"
)

// StateDirPath resolves the per-profile base directory for name: the
// DISTROX_HOME environment variable if set, otherwise an XDG-style
// default under the user's state home, mirroring original_source's
// xdg::BaseDirectories::with_prefix("distrox").create_state_directory
// usage. The directory (and its ipfs/ subdirectory) is created if absent.
func StateDirPath(name string) (StateDir, error) {
	if name == "" {
		return "", fmt.Errorf("profile: name must not be empty")
	}

	root := os.Getenv("DISTROX_HOME")
	if root == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolving home directory: %w", err)
		}
		root = filepath.Join(home, ".local", "state", "distrox")
	}

	dir := StateDir(filepath.Join(root, name))
	if err := os.MkdirAll(dir.IPFSPath(), 0o700); err != nil {
		return "", fmt.Errorf("creating state directory %s: %w", dir, err)
	}
	return dir, nil
}

// StateDir is the per-profile base path: <base>/ipfs holds the
// blockstore's own on-disk repo, <base>/profile_state holds the
// JSON-serialised ProfileStateOnDisk.
type StateDir string

// IPFSPath is the subdirectory the blockstore adapter owns.
func (d StateDir) IPFSPath() string { return filepath.Join(string(d), "ipfs") }

// ProfileStatePath is the path to the saved ProfileStateOnDisk file.
func (d StateDir) ProfileStatePath() string { return filepath.Join(string(d), "profile_state") }

func (d StateDir) String() string { return string(d) }

// State is the in-memory representation of a profile's identity and HEAD
// pointer (spec.md §3's ProfileState).
type State struct {
	ProfileName string
	Keypair     crypto.PrivKey
	ProfileHead *cid.Cid // nil for a fresh profile with no posts
}

// onDisk is the serialised form written to <base>/profile_state (spec.md
// §3's ProfileStateOnDisk), using JSON per spec.md rather than the TOML
// variant original_source's distrox-lib/src/state.rs also shows — see
// SPEC_FULL.md §4.D.
type onDisk struct {
	ProfileName    string `json:"profile_name"`
	KeypairBytes   string `json:"keypair_bytes"` // base64 of a marshalled libp2p private key
	ProfileHeadB64 string `json:"profile_head_bytes,omitempty"`
}

func newState(name string, kp crypto.PrivKey) *State {
	return &State{ProfileName: name, Keypair: kp}
}

func (s *State) toOnDisk() (onDisk, error) {
	kpBytes, err := crypto.MarshalPrivateKey(s.Keypair)
	if err != nil {
		return onDisk{}, fmt.Errorf("marshalling keypair: %w", err)
	}
	out := onDisk{
		ProfileName:  s.ProfileName,
		KeypairBytes: base64.StdEncoding.EncodeToString(kpBytes),
	}
	if s.ProfileHead != nil {
		out.ProfileHeadB64 = base64.StdEncoding.EncodeToString(s.ProfileHead.Bytes())
	}
	return out, nil
}

func (o onDisk) toState() (*State, error) {
	kpBytes, err := base64.StdEncoding.DecodeString(o.KeypairBytes)
	if err != nil {
		return nil, fmt.Errorf("decoding keypair bytes: %w", err)
	}
	kp, err := crypto.UnmarshalPrivateKey(kpBytes)
	if err != nil {
		return nil, fmt.Errorf("unmarshalling keypair: %w", err)
	}

	s := &State{ProfileName: o.ProfileName, Keypair: kp}
	if o.ProfileHeadB64 != "" {
		raw, err := base64.StdEncoding.DecodeString(o.ProfileHeadB64)
		if err != nil {
			return nil, fmt.Errorf("decoding profile_head bytes: %w", err)
		}
		c, err := cid.Cast(raw)
		if err != nil {
			return nil, fmt.Errorf("parsing profile_head CID: %w", err)
		}
		s.ProfileHead = &c
	}
	return s, nil
}

// saveToDisk atomically overwrites dir's profile_state file: write to a
// sibling temp file, fsync, rename. The file before save is either
// entirely the old contents or entirely the new contents, never a
// corrupt intermediate (spec.md §4.D, Testable Property 5).
func (s *State) saveToDisk(dir StateDir) error {
	od, err := s.toOnDisk()
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(od, "", "  ")
	if err != nil {
		return fmt.Errorf("serialising profile state: %w", err)
	}

	target := dir.ProfileStatePath()
	tmp, err := os.CreateTemp(filepath.Dir(target), ".profile_state-*")
	if err != nil {
		return fmt.Errorf("creating temp state file: %w", err)
	}
	tmpPath := tmp.Name()
	// Any early return below must still attempt cleanup of the temp
	// file; os.Remove on an already-renamed path is a harmless no-op
	// failure we deliberately ignore.
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp state file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("fsyncing temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp state file: %w", err)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		return fmt.Errorf("renaming temp state file onto %s: %w", target, err)
	}
	return nil
}

// loadFromDisk reads and decodes dir's profile_state file.
func loadFromDisk(dir StateDir) (*State, error) {
	data, err := os.ReadFile(dir.ProfileStatePath())
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", dir.ProfileStatePath(), err)
	}
	var od onDisk
	if err := json.Unmarshal(data, &od); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", dir.ProfileStatePath(), err)
	}
	return od.toState()
}
