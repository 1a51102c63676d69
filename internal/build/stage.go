package build

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkgforge/sbuild/internal/recipe"
	"github.com/pkgforge/sbuild/internal/xerrs"
)

// Layout is the set of filesystem paths one build occupies under the cache
// root (§4.B "Staging").
type Layout struct {
	Outdir     string
	TempDir    string
	ScriptPath string
}

// Stage creates outdir and its SBUILD_TEMP subdirectory and writes the
// recipe's x_exec.run body to an executable script with the shell's shebang.
func Stage(cacheRoot, pkgID string, rec *recipe.Recipe) (Layout, error) {
	outdir := filepath.Join(cacheRoot, "sbuild", pkgID)
	tempDir := filepath.Join(outdir, "SBUILD_TEMP")
	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		return Layout{}, xerrs.Wrap(xerrs.KindIO, "creating outdir", err)
	}

	script := "#!/usr/bin/env " + rec.XExec.Shell + "\n" + rec.XExec.Run
	scriptPath := filepath.Join(tempDir, "run.sh")
	if err := os.WriteFile(scriptPath, []byte(script), 0o755); err != nil {
		return Layout{}, xerrs.Wrap(xerrs.KindIO, "writing build script", err)
	}

	return Layout{Outdir: outdir, TempDir: tempDir, ScriptPath: scriptPath}, nil
}

// StageResources implements §4.B's "Resource staging policy": build assets
// are downloaded into SBUILD_TEMP/{out}; desktop/icon resources are resolved
// from file, dir or url form and renamed to {sbuild_pkg}.desktop /
// {sbuild_pkg}.{png|svg}.
func StageResources(ctx context.Context, layout Layout, sbuildPkg string, rec *recipe.Recipe) error {
	for _, asset := range rec.BuildAsset {
		dest := filepath.Join(layout.TempDir, asset.Out)
		if err := Download(ctx, asset.URL, dest); err != nil {
			return xerrs.Wrap(xerrs.KindDownload, "staging build_asset "+asset.Out, err)
		}
	}

	if rec.Desktop != nil {
		if err := stageDesktop(ctx, layout, *rec.Desktop, sbuildPkg); err != nil {
			return err
		}
	}
	if rec.Icon != nil {
		if err := stageIcon(ctx, layout, *rec.Icon, sbuildPkg); err != nil {
			return err
		}
	}
	return nil
}

func stageDesktop(ctx context.Context, layout Layout, res recipe.Resource, sbuildPkg string) error {
	dest := filepath.Join(layout.Outdir, sbuildPkg+".desktop")
	switch res.Kind() {
	case "file":
		return copyFile(filepath.Join(layout.Outdir, res.File), dest)
	case "dir":
		return copyFile(filepath.Join(res.Dir, sbuildPkg+".desktop"), dest)
	case "url":
		return Download(ctx, res.URL, dest)
	default:
		return xerrs.New(xerrs.KindValidation, "desktop resource has neither file, dir nor url set")
	}
}

func stageIcon(ctx context.Context, layout Layout, res recipe.Resource, sbuildPkg string) error {
	var raw string
	switch res.Kind() {
	case "file":
		raw = filepath.Join(layout.Outdir, res.File)
	case "dir":
		resolved, err := findIconInDir(res.Dir)
		if err != nil {
			return err
		}
		raw = resolved
	case "url":
		tmp := filepath.Join(layout.TempDir, filepath.Base(res.URL))
		if err := Download(ctx, res.URL, tmp); err != nil {
			return err
		}
		raw = tmp
	default:
		return xerrs.New(xerrs.KindValidation, "icon resource has neither file, dir nor url set")
	}

	data, err := os.ReadFile(raw)
	if err != nil {
		return xerrs.Wrap(xerrs.KindIO, "reading staged icon", err)
	}
	ext, ok := magicExtension(data)
	if !ok {
		warn := filepath.Join(layout.TempDir, filepath.Base(raw))
		os.Rename(raw, warn)
		return nil
	}
	dest := filepath.Join(layout.Outdir, sbuildPkg+ext)
	return os.Rename(raw, dest)
}

func findIconInDir(dir string) (string, error) {
	dirIcon := filepath.Join(dir, ".DirIcon")
	if _, err := os.Stat(dirIcon); err == nil {
		return dirIcon, nil
	}
	for _, pattern := range []string{"*.png", "*.svg"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err == nil && len(matches) > 0 {
			return matches[0], nil
		}
	}
	return "", xerrs.New(xerrs.KindBuild, fmt.Sprintf("no icon found in %s", dir))
}

func copyFile(src, dest string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return xerrs.Wrap(xerrs.KindIO, "reading "+src, err)
	}
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return xerrs.Wrap(xerrs.KindIO, "writing "+dest, err)
	}
	return nil
}
