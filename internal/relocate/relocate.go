// Package relocate implements the bottle installer and relocator (§4.7):
// tarball extraction, placeholder/Mach-O rewriting to the current prefix,
// re-signing, and the post-install receipt + linker invocation.
package relocate

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/go-version"

	"github.com/sps-pm/sps/internal/config"
	sperrors "github.com/sps-pm/sps/internal/errors"
	"github.com/sps-pm/sps/internal/formula"
	"github.com/sps-pm/sps/internal/linker"
	"github.com/sps-pm/sps/internal/logger"
	"github.com/sps-pm/sps/internal/pipeline"
)

const maxTextReplaceSize = 5 * 1024 * 1024

// receipt is the bottle installation receipt (§4.7).
type receipt struct {
	Version         string `json:"version"`
	Revision        int    `json:"revision"`
	InstallationType string `json:"installation_type"`
}

// Installer is the Bottle Installer + Relocator; it implements
// pipeline.BottleInstaller.
type Installer struct {
	cfg    *config.Config
	linker *linker.Linker
}

// New creates an Installer bound to cfg.
func New(cfg *config.Config) *Installer {
	return &Installer{cfg: cfg, linker: linker.New(cfg)}
}

var _ pipeline.BottleInstaller = (*Installer)(nil)

// InstallBottle extracts, relocates, re-signs, links, and receipts a bottle
// tarball for job.Formula (§4.7).
func (ins *Installer) InstallBottle(job *pipeline.PlannedJob, bottlePath string) error {
	f := job.Formula
	installDir := f.GetCellarPath(ins.cfg.HomebrewCellar)

	if _, err := os.Stat(installDir); err == nil {
		if err := os.RemoveAll(installDir); err != nil {
			return fmt.Errorf("clearing existing keg %s: %w", installDir, err)
		}
	}
	if err := os.MkdirAll(filepath.Dir(installDir), 0o755); err != nil {
		return err
	}

	if err := extractTarGzStripped(bottlePath, installDir, 2); err != nil {
		return fmt.Errorf("extracting bottle for %s: %w", f.Name, err)
	}
	if err := ensureWritePermissions(installDir); err != nil {
		logger.Warn("failed to relax permissions under %s: %v", installDir, err)
	}

	repl := ins.buildReplacementTable(f, installDir)

	if strings.HasPrefix(f.Name, "python@") {
		if err := relocatePythonFramework(f, installDir); err != nil {
			logger.Warn("python framework relocation for %s: %v", f.Name, err)
		}
	}

	if err := scanAndPatch(installDir, repl); err != nil {
		return sperrors.NewMachOError(installDir, err)
	}

	if err := ensureLLVMSymlinks(ins.cfg, f, installDir); err != nil {
		logger.Warn("llvm symlink step for %s: %v", f.Name, err)
	}

	if err := writeReceipt(installDir, f); err != nil {
		return err
	}

	if !f.KegOnly {
		if _, err := ins.linker.Link(f.Name, installDir); err != nil {
			return fmt.Errorf("linking %s: %w", f.Name, err)
		}
	}

	return ins.replaceOptSymlink(f, installDir)
}

func (ins *Installer) replaceOptSymlink(f *formula.Formula, installDir string) error {
	optPath := ins.cfg.FormulaOptPath(f.Name)
	if err := os.MkdirAll(filepath.Dir(optPath), 0o755); err != nil {
		return err
	}
	if _, err := os.Lstat(optPath); err == nil {
		if err := os.Remove(optPath); err != nil {
			return err
		}
	}
	return os.Symlink(installDir, optPath)
}

// buildReplacementTable constructs R (§4.7).
func (ins *Installer) buildReplacementTable(f *formula.Formula, installDir string) map[string]string {
	repl := map[string]string{
		"@@HOMEBREW_CELLAR@@":     ins.cfg.HomebrewCellar,
		"@@HOMEBREW_PREFIX@@":     ins.cfg.HomebrewPrefix,
		"@@HOMEBREW_REPOSITORY@@": ins.cfg.HomebrewPrefix,
		"@@HOMEBREW_LIBRARY@@":    filepath.Join(ins.cfg.HomebrewPrefix, "Library"),
	}

	upperName := upperFormulaName(f.Name)
	repl["@@HOMEBREW_OPT_"+upperName+"@@"] = ins.cfg.FormulaOptPath(f.Name)

	if optPath := ins.cfg.FormulaOptPath(f.Name); optPath != installDir {
		repl[optPath] = installDir
	}

	if perl := discoverPerl(ins.cfg); perl != "" {
		repl["@@HOMEBREW_PERL@@"] = perl
	}

	for _, dep := range f.GetDependencies(false) {
		if strings.HasPrefix(dep, "openjdk") {
			repl["@@HOMEBREW_JAVA@@"] = filepath.Join(ins.cfg.FormulaOptPath(dep), "libexec", "openjdk.jdk", "Contents", "Home")
		}
		if strings.HasPrefix(dep, "llvm") {
			llvmLib := filepath.Join(ins.cfg.FormulaOptPath(dep), "lib")
			if fi, err := os.Stat(llvmLib); err == nil && fi.IsDir() {
				repl["@loader_path/../lib"] = llvmLib
				repl["@@HOMEBREW_OPT_"+upperFormulaName(dep)+"@@/lib"] = llvmLib
			}
		}
	}

	return repl
}

func upperFormulaName(name string) string {
	upper := strings.ToUpper(name)
	replacer := strings.NewReplacer("-", "_", "+", "_", ".", "_")
	return replacer.Replace(upper)
}

// discoverPerl scans sps_root/opt/perl@X[.Y][.Z] (and a bare "perl") for
// the highest-versioned brewed Perl with an existing bin/perl, falling back
// to /usr/bin/perl (§4.7).
func discoverPerl(cfg *config.Config) string {
	optDir := filepath.Join(cfg.HomebrewPrefix, "opt")
	entries, err := os.ReadDir(optDir)
	if err != nil {
		return "/usr/bin/perl"
	}

	type candidate struct {
		ver  *version.Version
		path string
	}
	var candidates []candidate

	for _, e := range entries {
		name := e.Name()
		if name != "perl" && !strings.HasPrefix(name, "perl@") {
			continue
		}
		bin := filepath.Join(optDir, name, "bin", "perl")
		if _, err := os.Stat(bin); err != nil {
			continue
		}
		verStr := "0"
		if idx := strings.Index(name, "@"); idx >= 0 {
			verStr = name[idx+1:]
		}
		for strings.Count(verStr, ".") < 2 {
			verStr += ".0"
		}
		v, err := version.NewVersion(verStr)
		if err != nil {
			continue
		}
		candidates = append(candidates, candidate{ver: v, path: bin})
	}

	if len(candidates) == 0 {
		return "/usr/bin/perl"
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].ver.LessThan(candidates[j].ver) })
	return candidates[len(candidates)-1].path
}

func extractTarGzStripped(tarPath, destDir string, stripComponents int) error {
	file, err := os.Open(tarPath)
	if err != nil {
		return err
	}
	defer file.Close()

	gzr, err := gzip.NewReader(file)
	if err != nil {
		return err
	}
	defer gzr.Close()

	tr := tar.NewReader(gzr)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}

		parts := strings.Split(filepath.ToSlash(header.Name), "/")
		if len(parts) <= stripComponents {
			continue
		}
		relPath := filepath.Join(parts[stripComponents:]...)
		target := filepath.Join(destDir, relPath)

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, os.FileMode(header.Mode)|0o200); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			os.Remove(target)
			if err := os.Symlink(header.Linkname, target); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			f, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, os.FileMode(header.Mode)|0o200)
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
	return nil
}

func ensureWritePermissions(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil || path == root {
			return nil
		}
		mode := info.Mode()
		if mode&0o200 == 0 {
			_ = os.Chmod(path, mode|0o200)
		}
		return nil
	})
}

// scanAndPatch walks install_dir, skipping .app bundle interiors, patching
// Mach-O load commands or substituting placeholders in text files (§4.7).
func scanAndPatch(installDir string, repl map[string]string) error {
	var machoErrors int
	var filesToChmod []string

	err := filepath.Walk(installDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if insideAppBundle(installDir, path) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if info.IsDir() || !info.Mode().IsRegular() {
			return nil
		}

		initiallyExecutable := info.Mode()&0o111 != 0
		parent := filepath.Base(filepath.Dir(path))
		isInExecDir := parent == "bin" || parent == "sbin"
		ext := filepath.Ext(path)
		candidate := initiallyExecutable || isInExecDir || ext == ".dylib" || ext == ".so" || ext == ".bundle"

		wasModified := false

		if candidate {
			modified, skipped, err := PatchMachOFile(path, repl)
			if err != nil {
				logger.Debug("mach-o patch failed for %s: %v", path, err)
			} else if modified {
				wasModified = true
			}

			for _, skip := range skipped {
				if err := applyInstallNameToolChange(skip.OldPath, skip.NewPath, path); err != nil {
					if perr, ok := err.(*fileTooLongError); ok {
						return sperrors.NewPathTooLongError(path, perr.old, perr.new)
					}
					logger.Warn("install_name_tool fallback failed for %s: %v", path, err)
					machoErrors++
					continue
				}
				wasModified = true
			}

			if wasModified {
				if err := codesignPath(path); err != nil {
					machoErrors++
					return err
				}
			}
		}

		if !wasModified {
			if replaced, err := maybeTextReplace(path, info, repl); err != nil {
				logger.Debug("text replace failed for %s: %v", path, err)
			} else if replaced {
				wasModified = true
			}
		}

		if wasModified || initiallyExecutable || isInExecDir {
			filesToChmod = append(filesToChmod, path)
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, path := range filesToChmod {
		fi, err := os.Lstat(path)
		if err != nil || fi.Mode()&os.ModeSymlink != 0 {
			continue
		}
		if fi.Mode()&0o111 == 0 {
			_ = os.Chmod(path, fi.Mode()|0o111)
		}
	}

	if machoErrors > 0 {
		return fmt.Errorf("%d mach-o relocation errors in %s", machoErrors, installDir)
	}
	return nil
}

type fileTooLongError struct{ old, new string }

func (e *fileTooLongError) Error() string { return "path too long for install_name_tool" }

func insideAppBundle(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		if strings.HasSuffix(part, ".app") {
			return true
		}
	}
	return false
}

func maybeTextReplace(path string, info os.FileInfo, repl map[string]string) (bool, error) {
	if info.Size() >= maxTextReplaceSize {
		return false, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return false, err
	}
	probe := data
	if len(probe) > 1024 {
		probe = probe[:1024]
	}
	if bytes.IndexByte(probe, 0) >= 0 {
		return false, nil
	}

	content := string(data)
	replaced := false
	for placeholder, replacement := range repl {
		if strings.Contains(content, placeholder) {
			content = strings.ReplaceAll(content, placeholder, replacement)
			replaced = true
		}
	}
	if !replaced {
		return false, nil
	}

	tmp := path + ".sps-relocate-tmp"
	if err := os.WriteFile(tmp, []byte(content), info.Mode()); err != nil {
		os.Remove(tmp)
		return false, err
	}
	if err := os.Rename(tmp, path); err != nil {
		return false, err
	}
	return true, nil
}

func applyInstallNameToolChange(oldPath, newPath, target string) error {
	cmd := exec.Command("install_name_tool", "-change", oldPath, newPath, target)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := stderr.String()
		if strings.Contains(msg, "file not found") || strings.Contains(msg, "no LC_LOAD_DYLIB") || strings.Contains(msg, "not a Mach-O file") {
			return nil
		}
		if strings.Contains(msg, "would not fit") || strings.Contains(msg, "larger than") {
			return &fileTooLongError{old: oldPath, new: newPath}
		}
		return fmt.Errorf("install_name_tool -change %s %s %s: %s", oldPath, newPath, target, msg)
	}
	return nil
}

func codesignPath(target string) error {
	cmd := exec.Command("codesign", "-s", "-", "--force", "--preserve-metadata=identifier,entitlements", target)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return sperrors.NewCodesignError(target, fmt.Errorf("%s: %w", stderr.String(), err))
	}
	return nil
}

func relocatePythonFramework(f *formula.Formula, installDir string) error {
	versionFull := f.VersionString()
	parts := strings.SplitN(versionFull, ".", 3)
	if len(parts) < 2 {
		return nil
	}
	frameworkVersion := parts[0] + "." + parts[1]

	frameworkDir := filepath.Join(installDir, "Frameworks", "Python.framework", "Versions", frameworkVersion)
	pythonLib := filepath.Join(frameworkDir, "Python")
	pythonBin := filepath.Join(frameworkDir, "bin", "python"+frameworkVersion)
	pythonApp := filepath.Join(frameworkDir, "Resources", "Python.app", "Contents", "MacOS", "Python")

	if _, err := os.Stat(pythonLib); err != nil {
		return nil
	}

	if err := exec.Command("install_name_tool", "-id", pythonLib, pythonLib).Run(); err != nil {
		return fmt.Errorf("setting absolute id on %s: %w", pythonLib, err)
	}

	oldLoadPlaceholder := fmt.Sprintf("@@HOMEBREW_CELLAR@@/%s/%s/Frameworks/Python.framework/Versions/%s/Python", f.Name, versionFull, frameworkVersion)
	oldLoadResourcePlaceholder := fmt.Sprintf("@@HOMEBREW_CELLAR@@/%s/%s/Frameworks/Python.framework/Versions/%s/Resources/Python.app/Contents/MacOS/Python", f.Name, versionFull, frameworkVersion)
	absOldLoad := filepath.Join(installDir, "Frameworks", "Python.framework", "Versions", frameworkVersion, "Python")
	absOldLoadResource := filepath.Join(installDir, "Frameworks", "Python.framework", "Versions", frameworkVersion, "Resources", "Python.app", "Contents", "MacOS", "Python")

	for _, target := range []string{pythonBin, pythonApp} {
		if _, err := os.Stat(target); err != nil {
			continue
		}
		for _, old := range []string{oldLoadPlaceholder, oldLoadResourcePlaceholder, absOldLoad, absOldLoadResource} {
			_ = applyInstallNameToolChange(old, pythonLib, target)
		}
	}

	for _, target := range []string{pythonLib, pythonBin, pythonApp} {
		if _, err := os.Stat(target); err == nil {
			if err := codesignPath(target); err != nil {
				return err
			}
		}
	}
	return nil
}

// ensureLLVMSymlinks creates sps_root/lib/libLLVM.{dylib,so} and nested
// rustlib symlinks to a depended-on llvm's opt lib (§4.7 Post-relocation),
// if one exists and the target is not already present.
func ensureLLVMSymlinks(cfg *config.Config, f *formula.Formula, installDir string) error {
	var llvmOpt string
	for _, dep := range f.GetDependencies(false) {
		if strings.HasPrefix(dep, "llvm") {
			llvmOpt = cfg.FormulaOptPath(dep)
			break
		}
	}
	if llvmOpt == "" {
		return nil
	}

	libName := "libLLVM.dylib"
	src := filepath.Join(llvmOpt, "lib", libName)
	if _, err := os.Stat(src); err != nil {
		return nil
	}

	dst := filepath.Join(cfg.HomebrewPrefix, "lib", libName)
	if _, err := os.Lstat(dst); os.IsNotExist(err) {
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return err
		}
		if err := os.Symlink(src, dst); err != nil {
			return err
		}
	}

	rustlibRoot := filepath.Join(installDir, "lib", "rustlib")
	entries, err := os.ReadDir(rustlibRoot)
	if err != nil {
		return nil
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		libDir := filepath.Join(rustlibRoot, e.Name(), "lib")
		if _, err := os.Stat(libDir); err != nil {
			continue
		}
		nestedDst := filepath.Join(libDir, libName)
		if _, err := os.Lstat(nestedDst); os.IsNotExist(err) {
			_ = os.Symlink(src, nestedDst)
		}
	}
	return nil
}

func writeReceipt(installDir string, f *formula.Formula) error {
	r := receipt{Version: f.Version, Revision: f.Revision, InstallationType: "bottle"}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(installDir, "INSTALL_RECEIPT.json"), data, 0o644)
}
