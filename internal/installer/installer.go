package installer

import (
	"archive/tar"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/sps-pm/sps/internal/api"
	"github.com/sps-pm/sps/internal/config"
	"github.com/sps-pm/sps/internal/errors"
	"github.com/sps-pm/sps/internal/formula"
	"github.com/sps-pm/sps/internal/linker"
	"github.com/sps-pm/sps/internal/logger"
	"github.com/sps-pm/sps/internal/pipeline"
	"github.com/sps-pm/sps/internal/verification"
)

// progressReader wraps an io.Reader to show download progress
type progressReader struct {
	reader   io.Reader
	total    int64
	current  int64
	filename string
	lastUpdate time.Time
}

func (pr *progressReader) Read(p []byte) (n int, err error) {
	n, err = pr.reader.Read(p)
	pr.current += int64(n)
	
	// Update progress every 100ms to avoid flooding the terminal
	now := time.Now()
	if now.Sub(pr.lastUpdate) > 100*time.Millisecond || err == io.EOF {
		pr.lastUpdate = now
		percent := float64(pr.current) / float64(pr.total) * 100
		
		// Format file size
		currentMB := float64(pr.current) / 1024 / 1024
		totalMB := float64(pr.total) / 1024 / 1024
		
		if err == io.EOF {
			fmt.Printf("\r    Downloaded %s (%.1f MB) - 100%%\n", pr.filename, totalMB)
		} else {
			fmt.Printf("\r    Downloading %s (%.1f/%.1f MB) - %.1f%%", 
				pr.filename, currentMB, totalMB, percent)
		}
	}
	
	return n, err
}

// Installer handles formula and cask installation
type Installer struct {
	cfg       *config.Config
	opts      *Options
	apiClient *api.Client
	verifier  *verification.PackageVerifier
}

// Options contains installation options
type Options struct {
	BuildFromSource    bool
	ForceBottle        bool
	IgnoreDependencies bool
	OnlyDependencies   bool
	IncludeTest        bool
	HeadOnly           bool
	KeepTmp           bool
	DebugSymbols      bool
	Force             bool
	DryRun            bool
	Verbose           bool
	CC                string
	StrictVerification bool
}

// InstallResult contains the result of an installation
type InstallResult struct {
	Name     string
	Version  string
	Duration time.Duration
	Source   string // "bottle" or "source"
	Success  bool
	Error    error
}

// InstallReceipt contains installation metadata
type InstallReceipt struct {
	Name              string            `json:"name"`
	Version           string            `json:"version"`
	InstalledOn       time.Time         `json:"installed_on"`
	InstalledBy       string            `json:"installed_by"`
	Source            string            `json:"source"`
	BuildDependencies []string          `json:"build_dependencies,omitempty"`
	Dependencies      []string          `json:"dependencies,omitempty"`
	Options           []string          `json:"options,omitempty"`
	BuildOptions      map[string]string `json:"build_options,omitempty"`
	Compiler          string            `json:"compiler,omitempty"`
	Platform          string            `json:"platform"`
}

// New creates a new installer
func New(cfg *config.Config, opts *Options) *Installer {
	return &Installer{
		cfg:       cfg,
		opts:      opts,
		apiClient: api.NewClient(cfg),
		verifier:  verification.NewPackageVerifier(opts.StrictVerification),
	}
}

func (i *Installer) shouldUseBottle(f *formula.Formula) bool {
	if i.opts.BuildFromSource && !i.opts.ForceBottle {
		return false
	}

	if i.opts.HeadOnly && !f.IsStable() {
		return false
	}

	platform := i.apiClient.GetPlatformTag()
	return f.HasBottle(platform)
}

func (i *Installer) downloadFile(url, path string) error {
	filename := filepath.Base(url)
	logger.Step("Downloading %s", filename)

	// Create directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.NewPermissionError("create download directory", filepath.Dir(path), err)
	}

	resp, err := http.Get(url)
	if err != nil {
		return errors.NewNetworkError("download", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
		return errors.NewDownloadError("download", url, err)
	}

	// Get content length for verification
	contentLength := resp.ContentLength

	file, err := os.Create(path)
	if err != nil {
		return errors.NewPermissionError("create file", path, err)
	}
	defer file.Close()

	// Show download progress if content length is available
	var reader io.Reader = resp.Body
	if resp.ContentLength > 0 && !logger.IsQuiet() {
		reader = &progressReader{
			reader: resp.Body,
			total:  resp.ContentLength,
			filename: filename,
		}
	}

	bytesWritten, err := io.Copy(file, reader)
	if err != nil {
		return errors.NewDownloadError("save file", url, err)
	}

	// Verify downloaded size if content length was provided
	if contentLength > 0 && bytesWritten != contentLength {
		logger.Warn("Downloaded size (%d bytes) differs from expected size (%d bytes)", bytesWritten, contentLength)
	}

	logger.Success("Downloaded %s (%d bytes)", filename, bytesWritten)
	return nil
}

// VerifyInstallation verifies the integrity of an installed package
func (i *Installer) VerifyInstallation(formulaName string) (*verification.VerificationResult, error) {
	cellarPath := filepath.Join(i.cfg.HomebrewCellar, formulaName)
	return i.verifier.VerifyInstallation(cellarPath), nil
}

func (i *Installer) extractTarGz(tarPath, destDir string) error {
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

		target := filepath.Join(destDir, header.Name)

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, os.FileMode(header.Mode)); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return err
			}
			
			f, err := os.OpenFile(target, os.O_CREATE|os.O_RDWR, os.FileMode(header.Mode))
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

func (i *Installer) findSourceDirectory(extractDir string) (string, error) {
	// List contents of extract directory
	files, err := os.ReadDir(extractDir)
	if err != nil {
		return "", err
	}
	
	// If there's only one directory, use it as the source directory
	if len(files) == 1 && files[0].IsDir() {
		return filepath.Join(extractDir, files[0].Name()), nil
	}
	
	// Look for a directory with configure script
	for _, file := range files {
		if file.IsDir() {
			dirPath := filepath.Join(extractDir, file.Name())
			configurePath := filepath.Join(dirPath, "configure")
			if _, err := os.Stat(configurePath); err == nil {
				return dirPath, nil
			}
		}
	}
	
	// If no subdirectory with configure, check if configure is in extract dir
	configurePath := filepath.Join(extractDir, "configure")
	if _, err := os.Stat(configurePath); err == nil {
		return extractDir, nil
	}
	
	// If no configure script found, look for Makefile
	for _, file := range files {
		if file.IsDir() {
			dirPath := filepath.Join(extractDir, file.Name())
			makefilePath := filepath.Join(dirPath, "Makefile")
			if _, err := os.Stat(makefilePath); err == nil {
				return dirPath, nil
			}
		}
	}
	
	// Fallback: use the extract directory itself
	return extractDir, nil
}

func (i *Installer) detectBuildSystem(sourceDir, cellarPath string) ([][]string, string, error) {
	// Check for configure script (autotools)
	configurePath := filepath.Join(sourceDir, "configure")
	if _, err := os.Stat(configurePath); err == nil {
		logger.Debug("Found configure script, using autotools")
		return i.buildAutotoolsCommands(sourceDir, cellarPath)
	}
	
	// Check for configure.ac/configure.in without configure script (needs autoreconf)
	configureAcPath := filepath.Join(sourceDir, "configure.ac")
	configureInPath := filepath.Join(sourceDir, "configure.in")
	if _, err := os.Stat(configureAcPath); err == nil {
		logger.Debug("Found configure.ac, using autotools with autoreconf")
		return i.buildAutotoolsWithAutoreconf(sourceDir, cellarPath)
	}
	if _, err := os.Stat(configureInPath); err == nil {
		logger.Debug("Found configure.in, using autotools with autoreconf")
		return i.buildAutotoolsWithAutoreconf(sourceDir, cellarPath)
	}
	
	// Check for CMake
	cmakeListsPath := filepath.Join(sourceDir, "CMakeLists.txt")
	if _, err := os.Stat(cmakeListsPath); err == nil {
		logger.Debug("Found CMakeLists.txt, using CMake")
		buildDir := filepath.Join(sourceDir, "build")
		os.MkdirAll(buildDir, 0755)
		return [][]string{
			{"cmake", "-S", ".", "-B", "build", "-DCMAKE_INSTALL_PREFIX=" + cellarPath, "-DCMAKE_BUILD_TYPE=Release"},
			{"cmake", "--build", "build", "--parallel"},
			{"cmake", "--install", "build"},
		}, "cmake", nil
	}
	
	// Check for Meson
	mesonBuildPath := filepath.Join(sourceDir, "meson.build")
	if _, err := os.Stat(mesonBuildPath); err == nil {
		logger.Debug("Found meson.build, using Meson")
		return [][]string{
			{"meson", "setup", "builddir", "--prefix=" + cellarPath, "--buildtype=release"},
			{"meson", "compile", "-C", "builddir"},
			{"meson", "install", "-C", "builddir"},
		}, "meson", nil
	}
	
	// Check for Python setup.py
	setupPyPath := filepath.Join(sourceDir, "setup.py")
	if _, err := os.Stat(setupPyPath); err == nil {
		logger.Debug("Found setup.py, using Python setuptools")
		return [][]string{
			{"python3", "setup.py", "build"},
			{"python3", "setup.py", "install", "--prefix=" + cellarPath},
		}, "python-setuptools", nil
	}
	
	// Check for Python pyproject.toml (modern Python packaging)
	pyprojectPath := filepath.Join(sourceDir, "pyproject.toml")
	if _, err := os.Stat(pyprojectPath); err == nil {
		logger.Debug("Found pyproject.toml, using pip")
		return [][]string{
			{"pip3", "install", ".", "--prefix=" + cellarPath, "--no-deps"},
		}, "python-pip", nil
	}
	
	// Check for Rust Cargo.toml
	cargoTomlPath := filepath.Join(sourceDir, "Cargo.toml")
	if _, err := os.Stat(cargoTomlPath); err == nil {
		logger.Debug("Found Cargo.toml, using Rust cargo")
		return [][]string{
			{"cargo", "build", "--release"},
			{"cargo", "install", "--path", ".", "--root", cellarPath},
		}, "rust-cargo", nil
	}
	
	// Check for Go modules
	goModPath := filepath.Join(sourceDir, "go.mod")
	if _, err := os.Stat(goModPath); err == nil {
		logger.Debug("Found go.mod, using Go modules")
		binDir := filepath.Join(cellarPath, "bin")
		os.MkdirAll(binDir, 0755)
		return [][]string{
			{"go", "build", "-o", binDir + "/", "./..."},
		}, "go-modules", nil
	}
	
	// Check for Node.js package.json
	packageJsonPath := filepath.Join(sourceDir, "package.json")
	if _, err := os.Stat(packageJsonPath); err == nil {
		logger.Debug("Found package.json, using npm")
		return [][]string{
			{"npm", "install"},
			{"npm", "run", "build"},
			{"npm", "install", "--prefix", cellarPath, "--global"},
		}, "npm", nil
	}
	
	// Check for Ninja build files
	buildNinjaPath := filepath.Join(sourceDir, "build.ninja")
	if _, err := os.Stat(buildNinjaPath); err == nil {
		logger.Debug("Found build.ninja, using Ninja")
		return [][]string{
			{"ninja"},
			{"ninja", "install"},
		}, "ninja", nil
	}
	
	// Check for Bazel BUILD files
	buildBazelPath := filepath.Join(sourceDir, "BUILD")
	buildBazelBazelPath := filepath.Join(sourceDir, "BUILD.bazel")
	workspacePath := filepath.Join(sourceDir, "WORKSPACE")
	_, err1 := os.Stat(buildBazelPath)
	_, err2 := os.Stat(buildBazelBazelPath)
	_, err3 := os.Stat(workspacePath)
	if err1 == nil || err2 == nil || err3 == nil {
		logger.Debug("Found Bazel build files, using Bazel")
		return [][]string{
			{"bazel", "build", "//..."},
			{"bazel", "run", "//install", "--", "--prefix=" + cellarPath},
		}, "bazel", nil
	}
	
	// Check for standard Makefile
	makefilePath := filepath.Join(sourceDir, "Makefile")
	if _, err := os.Stat(makefilePath); err == nil {
		logger.Debug("Found Makefile, using make")
		return [][]string{
			{"make", "PREFIX=" + cellarPath},
			{"make", "install", "PREFIX=" + cellarPath},
		}, "makefile", nil
	}
	
	
	// No recognized build system found
	buildFiles := []string{}
	possibleFiles := []string{
		"CMakeLists.txt", "meson.build", "setup.py", "pyproject.toml", 
		"Cargo.toml", "go.mod", "package.json", "build.ninja", 
		"BUILD", "BUILD.bazel", "WORKSPACE", "Makefile", "makefile",
		"configure.in", "configure.ac", "Makefile.am", "Makefile.in",
	}
	
	for _, file := range possibleFiles {
		if _, err := os.Stat(filepath.Join(sourceDir, file)); err == nil {
			buildFiles = append(buildFiles, file)
		}
	}
	
	buildErr := errors.NewBuildError("", "", fmt.Errorf("no supported build system found"))
	buildErr.Suggestions = []string{
		"This formula uses an unsupported or unrecognized build system",
		"Supported: autotools, CMake, Meson, Python (setuptools/pip), Rust (cargo), Go, Node.js (npm), Ninja, Bazel, Make",
	}
	
	if len(buildFiles) > 0 {
		buildErr.Suggestions = append(buildErr.Suggestions,
			fmt.Sprintf("Found build files: %s", strings.Join(buildFiles, ", ")),
			"These may indicate an unsupported build system variant")
	} else {
		buildErr.Suggestions = append(buildErr.Suggestions,
			"No recognized build files found in source directory",
			"This may be a library or data-only package")
	}
	
	return nil, "", buildErr
}

func (i *Installer) buildAutotoolsCommands(sourceDir, cellarPath string) ([][]string, string, error) {
	// Standard autotools build with existing configure script
	return [][]string{
		{"./configure", "--prefix=" + cellarPath, "--disable-dependency-tracking"},
		{"make"},
		{"make", "install"},
	}, "autotools", nil
}

func (i *Installer) buildAutotoolsWithAutoreconf(sourceDir, cellarPath string) ([][]string, string, error) {
	// Check if we need to install autotools first
	if err := i.ensureAutotoolsAvailable(); err != nil {
		return nil, "", fmt.Errorf("autotools not available: %w", err)
	}
	
	return [][]string{
		{"autoreconf", "-fiv"},
		{"./configure", "--prefix=" + cellarPath, "--disable-dependency-tracking"},
		{"make"},
		{"make", "install"},
	}, "autotools-generate", nil
}

func (i *Installer) ensureAutotoolsAvailable() error {
	// Check for required autotools commands
	requiredTools := []string{"autoreconf", "autoconf", "automake", "aclocal"}
	
	for _, tool := range requiredTools {
		if _, err := exec.LookPath(tool); err != nil {
			logger.Warn("Required tool '%s' not found", tool)
			
			// Try to install autotools using the system's package manager
			if err := i.installAutotools(); err != nil {
				return fmt.Errorf("autotools installation failed: %w", err)
			}
			break
		}
	}
	
	return nil
}

func (i *Installer) installAutotools() error {
	logger.Step("Installing autotools dependencies")
	
	// Try different package managers based on the system
	if runtime.GOOS == "darwin" {
		// Try to use Homebrew to install autotools
		cmd := exec.Command("brew", "install", "autoconf", "automake", "libtool")
		if err := cmd.Run(); err == nil {
			logger.Success("Installed autotools via Homebrew")
			return nil
		}
		
		// Try MacPorts as fallback
		cmd = exec.Command("port", "install", "autoconf", "automake", "libtool")
		if err := cmd.Run(); err == nil {
			logger.Success("Installed autotools via MacPorts")
			return nil
		}
	} else if runtime.GOOS == "linux" {
		// Try different Linux package managers
		managers := [][]string{
			{"apt-get", "update", "&&", "apt-get", "install", "-y", "autoconf", "automake", "libtool"},
			{"yum", "install", "-y", "autoconf", "automake", "libtool"},
			{"dnf", "install", "-y", "autoconf", "automake", "libtool"},
			{"pacman", "-S", "--noconfirm", "autoconf", "automake", "libtool"},
		}
		
		for _, mgr := range managers {
			cmd := exec.Command(mgr[0], mgr[1:]...)
			if err := cmd.Run(); err == nil {
				logger.Success("Installed autotools via %s", mgr[0])
				return nil
			}
		}
	}
	
	return fmt.Errorf("could not install autotools automatically - please install autoconf, automake, and libtool manually")
}

func (i *Installer) getBuildSystemSuggestions(buildSystem, command string) []string {
	suggestions := []string{}
	
	switch buildSystem {
	case "autotools", "autotools-generate":
		if strings.Contains(command, "configure") {
			suggestions = append(suggestions,
				"Check if all build dependencies are installed",
				"Review the configure output above for missing dependencies",
				"Try: brew install autoconf automake libtool",
				"Ensure pkg-config is installed for dependency detection")
		} else if strings.Contains(command, "make") {
			suggestions = append(suggestions,
				"Check for compilation errors in the output above",
				"Ensure you have the required development tools installed",
				"Try: xcode-select --install (on macOS)")
		} else if strings.Contains(command, "autoreconf") {
			suggestions = append(suggestions,
				"Install autotools if missing: brew install autoconf automake libtool",
				"Check if configure.ac or configure.in syntax is correct")
		}
		
	case "cmake":
		if strings.Contains(command, "cmake") && strings.Contains(command, "-S") {
			suggestions = append(suggestions,
				"Ensure CMake is installed: brew install cmake",
				"Check if all CMake dependencies are available",
				"Review CMakeLists.txt for missing required packages",
				"Try adding -DCMAKE_VERBOSE_MAKEFILE=ON for more details")
		} else if strings.Contains(command, "--build") {
			suggestions = append(suggestions,
				"Check for compilation errors in the output above",
				"Ensure all required libraries and headers are installed",
				"Try: cmake --build build --verbose for detailed output")
		} else if strings.Contains(command, "--install") {
			suggestions = append(suggestions,
				"Check if the build completed successfully",
				"Ensure you have write permissions to the install directory")
		}
		
	case "meson":
		if strings.Contains(command, "setup") {
			suggestions = append(suggestions,
				"Ensure Meson is installed: brew install meson",
				"Check if all Meson dependencies are available",
				"Review meson.build for missing required packages",
				"Try: pip3 install meson if brew version doesn't work")
		} else if strings.Contains(command, "compile") {
			suggestions = append(suggestions,
				"Check for compilation errors in the output above",
				"Ensure all required libraries and headers are installed",
				"Try: meson compile -C builddir --verbose for detailed output")
		} else if strings.Contains(command, "install") {
			suggestions = append(suggestions,
				"Check if the build completed successfully",
				"Ensure you have write permissions to the install directory")
		}
		
	case "python-setuptools":
		suggestions = append(suggestions,
			"Ensure Python 3 and setuptools are installed",
			"Try: pip3 install setuptools wheel",
			"Check if all Python dependencies are available",
			"Review setup.py for missing required packages")
			
	case "python-pip":
		suggestions = append(suggestions,
			"Ensure Python 3 and pip are installed",
			"Try: python3 -m pip install --upgrade pip",
			"Check if all Python dependencies are available",
			"Review pyproject.toml for build system requirements")
			
	case "rust-cargo":
		if strings.Contains(command, "build") {
			suggestions = append(suggestions,
				"Ensure Rust is installed: brew install rust",
				"Check if all Cargo dependencies can be downloaded",
				"Try: cargo build --verbose for detailed output",
				"Ensure you have internet access for crate downloads")
		} else if strings.Contains(command, "install") {
			suggestions = append(suggestions,
				"Check if the build completed successfully",
				"Ensure the binary was built correctly")
		}
		
	case "go-modules":
		suggestions = append(suggestions,
			"Ensure Go is installed: brew install go",
			"Check if all Go dependencies can be downloaded",
			"Try: go build -v for verbose output",
			"Ensure you have internet access for module downloads",
			"Check if go.mod and go.sum are valid")
			
	case "npm":
		if strings.Contains(command, "install") && !strings.Contains(command, "global") {
			suggestions = append(suggestions,
				"Ensure Node.js and npm are installed: brew install node",
				"Check if all npm dependencies can be downloaded",
				"Try: npm install --verbose for detailed output",
				"Clear npm cache: npm cache clean --force")
		} else if strings.Contains(command, "build") {
			suggestions = append(suggestions,
				"Check if the build script is defined in package.json",
				"Ensure all build dependencies are installed",
				"Try: npm run build --verbose for detailed output")
		} else if strings.Contains(command, "global") {
			suggestions = append(suggestions,
				"Check if the package was built successfully",
				"Ensure you have write permissions to the global directory")
		}
		
	case "ninja":
		suggestions = append(suggestions,
			"Ensure Ninja is installed: brew install ninja",
			"Check if build.ninja was generated correctly",
			"Try: ninja -v for verbose output",
			"Verify all dependencies for the build targets")
			
	case "bazel":
		suggestions = append(suggestions,
			"Ensure Bazel is installed: brew install bazel",
			"Check if WORKSPACE and BUILD files are valid",
			"Try: bazel build --verbose_failures //...",
			"Ensure all external dependencies can be downloaded")
			
	case "makefile":
		suggestions = append(suggestions,
			"Check for compilation errors in the output above",
			"Ensure you have the required development tools installed",
			"Try: make -j1 for sequential build to isolate errors",
			"Review the Makefile for proper PREFIX handling")
			
	default:
		suggestions = append(suggestions,
			"Check the build system documentation for troubleshooting",
			"Ensure all required build tools are installed",
			"Review the project's README for build instructions")
	}
	
	return suggestions
}

func (i *Installer) applyPatch(sourceDir string, patch *formula.Patch) error {
	logger.Step("Applying patch")
	
	var patchContent []byte
	var err error
	
	// Get patch content either from URL or inline data
	if patch.URL != "" {
		// Download patch from URL
		logger.Debug("Downloading patch from: %s", patch.URL)
		patchPath := filepath.Join(i.cfg.HomebrewTemp, "patch-"+filepath.Base(patch.URL))
		if err := i.downloadFile(patch.URL, patchPath); err != nil {
			return fmt.Errorf("failed to download patch: %w", err)
		}
		
		patchContent, err = os.ReadFile(patchPath)
		if err != nil {
			return fmt.Errorf("failed to read patch file: %w", err)
		}
		
		// Cleanup patch file
		defer os.Remove(patchPath)
	} else if patch.Data != "" {
		// Use inline patch data
		patchContent = []byte(patch.Data)
	} else {
		return fmt.Errorf("patch has no URL or inline data")
	}
	
	// Apply the patch using the patch command
	cmd := exec.Command("patch", fmt.Sprintf("-p%d", patch.Strip))
	cmd.Dir = sourceDir
	cmd.Stdin = strings.NewReader(string(patchContent))
	
	// Capture output for debugging
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	
	if err := cmd.Run(); err != nil {
		logger.Error("Patch application failed:")
		logger.Error("stdout: %s", stdout.String())
		logger.Error("stderr: %s", stderr.String())
		return fmt.Errorf("failed to apply patch: %w", err)
	}
	
	logger.Success("Patch applied successfully")
	return nil
}

func (i *Installer) buildAndInstall(f *formula.Formula, sourceDir, cellarPath string) error {
	logger.Progress("Building and installing %s", f.Name)

	// Create cellar directory
	if err := os.MkdirAll(cellarPath, 0755); err != nil {
		return errors.NewPermissionError("create cellar directory", cellarPath, err)
	}

	// Set environment variables
	env := os.Environ()
	env = append(env, "PREFIX="+cellarPath)
	env = append(env, "HOMEBREW_PREFIX="+i.cfg.HomebrewPrefix)
	
	if i.opts.CC != "" {
		env = append(env, "CC="+i.opts.CC)
	}

	// Detect build system and build accordingly
	commands, buildSystem, err := i.detectBuildSystem(sourceDir, cellarPath)
	if err != nil {
		return err
	}
	
	logger.Debug("Using build system: %s", buildSystem)

	for _, cmdArgs := range commands {
		cmdName := strings.Join(cmdArgs, " ")
		logger.Step("Running: %s", cmdName)
		
		cmd := exec.Command(cmdArgs[0], cmdArgs[1:]...)
		cmd.Dir = sourceDir
		cmd.Env = env
		
		// Always show live output to match original Homebrew behavior
		// Capture output for error reporting while streaming live
		var stdout, stderr strings.Builder
		
		// Create multi-writers to both capture and display live output
		cmd.Stdout = io.MultiWriter(&stdout, os.Stdout)
		cmd.Stderr = io.MultiWriter(&stderr, os.Stderr)
		
		// In quiet mode, only capture without live display
		if logger.IsQuiet() {
			cmd.Stdout = &stdout
			cmd.Stderr = &stderr
		}

		if err := cmd.Run(); err != nil {
			// Create detailed build error
			buildErr := errors.NewBuildError(f.Name, f.Version, err)
			
			// Add build system and command-specific suggestions
			buildErr.Suggestions = append(buildErr.Suggestions, i.getBuildSystemSuggestions(buildSystem, cmdArgs[0])...)
			
			// In quiet mode, show the captured output since it wasn't displayed live
			if logger.IsQuiet() && stderr.Len() > 0 {
				logger.Error("Build stderr output:")
				logger.Error(stderr.String())
			}
			
			return buildErr
		}
		
		// Show successful step completion
		logger.Success("Completed: %s", cmdName)
	}

	return nil
}

func (i *Installer) writeInstallReceipt(f *formula.Formula, source string) error {
	receipt := InstallReceipt{
		Name:        f.Name,
		Version:     f.Version,
		InstalledOn: time.Now(),
		InstalledBy: "brew-go",
		Source:      source,
		Dependencies: f.Dependencies,
		BuildDependencies: f.BuildDependencies,
		Platform:    i.apiClient.GetPlatformTag(),
	}

	if i.opts.CC != "" {
		receipt.Compiler = i.opts.CC
	}

	receiptPath := f.GetInstallReceipt(i.cfg.HomebrewCellar)
	if err := os.MkdirAll(filepath.Dir(receiptPath), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(receipt, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(receiptPath, data, 0644)
}

func (i *Installer) isFormulaInstalled(name string) (bool, error) {
	formulaPath := filepath.Join(i.cfg.HomebrewCellar, name)
	_, err := os.Stat(formulaPath)
	if os.IsNotExist(err) {
		return false, nil
	}
	return err == nil, err
}

func getPlatform() string {
	switch runtime.GOOS {
	case "darwin":
		switch runtime.GOARCH {
		case "amd64":
			return "monterey"
		case "arm64":
			return "arm64_monterey"
		}
	case "linux":
		return "x86_64_linux"
	}
	return "unknown"
}

var _ pipeline.SourceBuilder = (*Installer)(nil)

// sourceReceipt mirrors relocate's bottle receipt shape with
// installation_type "source" (§6 INSTALL_RECEIPT.json).
type sourceReceipt struct {
	Version          string `json:"version"`
	Revision         int    `json:"revision"`
	InstallationType string `json:"installation_type"`
}

// BuildFromSource implements pipeline.SourceBuilder: it extracts the
// downloaded source tarball, applies the formula's patches, builds with the
// detected build system, and links the result, reusing this package's
// pre-pipeline build logic (§4.6 worker dispatch, SourceOnly strategy).
func (i *Installer) BuildFromSource(job *pipeline.PlannedJob, sourcePath string) error {
	f := job.Formula

	buildDir := filepath.Join(i.cfg.HomebrewTemp, f.Name+"-"+f.VersionString()+"-build")
	os.RemoveAll(buildDir)
	if err := os.MkdirAll(buildDir, 0o755); err != nil {
		return errors.NewPermissionError("create build directory", buildDir, err)
	}
	defer func() {
		if !i.opts.KeepTmp {
			os.RemoveAll(buildDir)
		}
	}()

	extractDir := filepath.Join(buildDir, "extracted")
	if err := i.extractTarGz(sourcePath, extractDir); err != nil {
		return fmt.Errorf("extracting source: %w", err)
	}

	sourceDir, err := i.findSourceDirectory(extractDir)
	if err != nil {
		return fmt.Errorf("locating source directory: %w", err)
	}

	for _, patch := range f.Patches {
		if err := i.applyPatch(sourceDir, &patch); err != nil {
			return fmt.Errorf("applying patch: %w", err)
		}
	}

	cellarPath := f.GetCellarPath(i.cfg.HomebrewCellar)
	if err := i.buildAndInstall(f, sourceDir, cellarPath); err != nil {
		return err
	}

	if err := writeSourceReceipt(cellarPath, f); err != nil {
		return fmt.Errorf("writing install receipt: %w", err)
	}

	if !f.KegOnly {
		if _, err := linker.New(i.cfg).Link(f.Name, cellarPath); err != nil {
			return fmt.Errorf("linking %s: %w", f.Name, err)
		}
	}

	return nil
}

func writeSourceReceipt(installDir string, f *formula.Formula) error {
	r := sourceReceipt{Version: f.Version, Revision: f.Revision, InstallationType: "source"}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(installDir, "INSTALL_RECEIPT.json"), data, 0o644)
}