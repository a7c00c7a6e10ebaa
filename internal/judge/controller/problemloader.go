package controller

import (
	"archive/tar"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
	"gopkg.in/yaml.v3"

	"jjsgo/internal/common/cache"
	"jjsgo/internal/common/storage"
	"jjsgo/internal/judge/model"
	pkgerrors "jjsgo/pkg/errors"
)

// problemAssetManifest is the on-disk (and cached) descriptor a problem
// package's manifest.yaml parses into, before being lowered into
// model.ProblemManifest. Kept distinct from model.ProblemManifest so the
// wire/storage shape can evolve (extra problem-setter metadata, etc.)
// without touching the judging core's types.
type problemAssetManifest struct {
	Name            string          `yaml:"name" json:"name"`
	Title           string          `yaml:"title" json:"title"`
	Tests           []model.Test    `yaml:"tests" json:"tests"`
	CheckerExe      model.FileRef   `yaml:"checker_exe" json:"checker_exe"`
	CheckerArgvTail []string        `yaml:"checker_argv_tail" json:"checker_argv_tail"`
	ValuerExe       model.FileRef   `yaml:"valuer_exe" json:"valuer_exe"`
	ValuerConfig    model.FileRef   `yaml:"valuer_config" json:"valuer_config"`
}

func (m problemAssetManifest) toModel() *model.ProblemManifest {
	return &model.ProblemManifest{
		Name:            m.Name,
		Title:           m.Title,
		Tests:           m.Tests,
		CheckerExe:      m.CheckerExe,
		CheckerArgvTail: m.CheckerArgvTail,
		ValuerExe:       m.ValuerExe,
		ValuerConfig:    m.ValuerConfig,
	}
}

// ProblemLoaderConfig wires a ProblemLoader to its object-storage bucket
// and metadata cache, mirroring judge_service.go's Config fields
// (sourceBucket, metaTTL) plus a local unpack directory.
type ProblemLoaderConfig struct {
	Storage   storage.ObjectStorage
	Cache     cache.Cache
	Bucket    string
	LocalDir  string
	MetaTTL   time.Duration
	CtxTimeout time.Duration
}

// ProblemLoader fetches a problem's `<id>.tar.zst` package from object
// storage the first time it is judged, unpacks it under LocalDir, and
// caches its parsed manifest for MetaTTL — the same cache-penetration
// shape as judge_service.go's metaMu/metaCache, generalized from an
// in-process map to the shared internal/common/cache.Cache so multiple
// jjs-judged replicas share one warm cache.
type ProblemLoader struct {
	cfg ProblemLoaderConfig

	unpackMu sync.Mutex
	unpacked map[string]string
}

func NewProblemLoader(cfg ProblemLoaderConfig) *ProblemLoader {
	if cfg.MetaTTL == 0 {
		cfg.MetaTTL = 5 * time.Minute
	}
	if cfg.CtxTimeout == 0 {
		cfg.CtxTimeout = 30 * time.Second
	}
	return &ProblemLoader{cfg: cfg, unpacked: make(map[string]string)}
}

func (l *ProblemLoader) cacheKey(problemID string) string {
	return "jjs:problem-meta:" + problemID
}

// Load implements model.ProblemLoader.
func (l *ProblemLoader) Load(problemID string) (*model.ProblemManifest, string, error) {
	dir, err := l.ensureUnpacked(problemID)
	if err != nil {
		return nil, "", err
	}

	ctx, cancel := context.WithTimeout(context.Background(), l.cfg.CtxTimeout)
	defer cancel()

	if cached, err := l.cfg.Cache.Get(ctx, l.cacheKey(problemID)); err == nil && cached != "" && cached != cache.NullCacheValue {
		var asset problemAssetManifest
		if jsonErr := json.Unmarshal([]byte(cached), &asset); jsonErr == nil {
			return asset.toModel(), dir, nil
		}
	}

	asset, err := l.readManifest(dir)
	if err != nil {
		return nil, "", err
	}
	if encoded, jsonErr := json.Marshal(asset); jsonErr == nil {
		_ = l.cfg.Cache.Set(ctx, l.cacheKey(problemID), string(encoded), l.cfg.MetaTTL)
	}
	return asset.toModel(), dir, nil
}

func (l *ProblemLoader) readManifest(dir string) (problemAssetManifest, error) {
	var asset problemAssetManifest
	data, err := os.ReadFile(filepath.Join(dir, "manifest.yaml"))
	if err != nil {
		return asset, pkgerrors.Wrapf(err, pkgerrors.ProblemNotFound, "read problem manifest")
	}
	if err := yaml.Unmarshal(data, &asset); err != nil {
		return asset, pkgerrors.Wrapf(err, pkgerrors.TemplateBadSyntax, "parse problem manifest")
	}
	return asset, nil
}

func (l *ProblemLoader) ensureUnpacked(problemID string) (string, error) {
	l.unpackMu.Lock()
	defer l.unpackMu.Unlock()

	if dir, ok := l.unpacked[problemID]; ok {
		if _, err := os.Stat(dir); err == nil {
			return dir, nil
		}
	}

	dir := filepath.Join(l.cfg.LocalDir, problemID)
	if _, err := os.Stat(filepath.Join(dir, "manifest.yaml")); err == nil {
		l.unpacked[problemID] = dir
		return dir, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), l.cfg.CtxTimeout)
	defer cancel()

	reader, err := l.cfg.Storage.GetObject(ctx, l.cfg.Bucket, problemID+".tar.zst")
	if err != nil {
		return "", pkgerrors.Wrapf(err, pkgerrors.ProblemNotFound, "fetch problem package %q", problemID)
	}
	defer reader.Close()

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", pkgerrors.Wrap(err, pkgerrors.JudgeSystemError)
	}
	if err := unpackTarZst(reader, dir); err != nil {
		return "", pkgerrors.Wrapf(err, pkgerrors.JudgeSystemError, "unpack problem package %q", problemID)
	}

	l.unpacked[problemID] = dir
	return dir, nil
}

// unpackTarZst streams a zstd-compressed tar into dir, mirroring the
// teacher's CacheConfig-driven pack extraction but using
// klauspost/compress/zstd instead of the teacher's gzip path, since
// problem/toolchain packs in this core are distributed as .tar.zst
// (spec §11).
func unpackTarZst(r io.Reader, dir string) error {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return err
	}
	defer zr.Close()

	tr := tar.NewReader(zr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		target := filepath.Join(dir, hdr.Name)
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, os.FileMode(hdr.Mode)|0700); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return err
			}
			f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode)|0600)
			if err != nil {
				return err
			}
			if _, err := io.Copy(f, tr); err != nil {
				f.Close()
				return err
			}
			f.Close()
		}
	}
}
