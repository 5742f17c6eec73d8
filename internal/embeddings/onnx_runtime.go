//go:build cgo

package embeddings

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"go.uber.org/zap"
)

// ONNXRuntimeVersion must match the onnxruntime_go version fastembed-go
// links against.
const ONNXRuntimeVersion = "1.23.0"

// onnxPathEnv is read by fastembed-go to locate the shared library.
const onnxPathEnv = "ONNX_PATH"

// ErrUnsupportedPlatform indicates no ONNX runtime build exists for this OS/arch.
var ErrUnsupportedPlatform = errors.New("unsupported platform")

var onnxArchives = map[string]string{
	"linux/amd64":  "linux-x64",
	"linux/arm64":  "linux-aarch64",
	"darwin/amd64": "osx-x86_64",
	"darwin/arm64": "osx-arm64",
}

func onnxArchive(goos, goarch string) (string, error) {
	if arch, ok := onnxArchives[goos+"/"+goarch]; ok {
		return arch, nil
	}
	return "", fmt.Errorf("%w: %s/%s", ErrUnsupportedPlatform, goos, goarch)
}

func onnxLibraryName(goos string) string {
	if goos == "darwin" {
		return "libonnxruntime.dylib"
	}
	return "libonnxruntime.so"
}

// onnxDownloadURL is a var so tests can point it at a local server.
var onnxDownloadURL = func(version, platform string) string {
	return fmt.Sprintf("https://github.com/microsoft/onnxruntime/releases/download/v%s/onnxruntime-%s-%s.tgz",
		version, platform, version)
}

// EnsureONNXRuntime returns the shared library path, downloading the runtime
// into dir when neither ONNX_PATH nor a previous install is present. The
// resolved path is exported through ONNX_PATH.
func EnsureONNXRuntime(ctx context.Context, dir string, logger *zap.Logger) (string, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if p := os.Getenv(onnxPathEnv); p != "" {
		return p, nil
	}

	libPath := filepath.Join(dir, onnxLibraryName(runtime.GOOS))
	if _, err := os.Stat(libPath); err != nil {
		logger.Info("downloading ONNX runtime",
			zap.String("version", ONNXRuntimeVersion),
			zap.String("dir", dir))
		if err := downloadONNXRuntime(ctx, ONNXRuntimeVersion, dir); err != nil {
			return "", fmt.Errorf("installing ONNX runtime (set %s to use an existing one): %w", onnxPathEnv, err)
		}
	}

	if err := os.Setenv(onnxPathEnv, libPath); err != nil {
		return "", fmt.Errorf("setting %s: %w", onnxPathEnv, err)
	}
	return libPath, nil
}

func downloadONNXRuntime(ctx context.Context, version, dir string) error {
	platform, err := onnxArchive(runtime.GOOS, runtime.GOARCH)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, onnxDownloadURL(version, platform), nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("downloading: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed with status %d", resp.StatusCode)
	}

	prefix := fmt.Sprintf("onnxruntime-%s-%s/lib/", platform, version)
	return extractLibraries(resp.Body, dir, prefix, onnxLibraryName(runtime.GOOS))
}

// extractLibraries copies every file under prefix in a .tgz stream into dir,
// flattening paths. It fails if libName was not among them.
func extractLibraries(r io.Reader, dir, prefix, libName string) error {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("opening gzip stream: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	found := false
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("reading tar: %w", err)
		}

		name := strings.TrimPrefix(hdr.Name, "./")
		if !strings.HasPrefix(name, prefix) || hdr.Typeflag == tar.TypeDir {
			continue
		}
		base := filepath.Base(name)
		dest := filepath.Join(dir, base)

		switch hdr.Typeflag {
		case tar.TypeSymlink:
			_ = os.Remove(dest)
			if strings.Contains(hdr.Linkname, "/") {
				continue
			}
			if err := os.Symlink(hdr.Linkname, dest); err != nil {
				continue
			}
		case tar.TypeReg:
			if err := writeFile(dest, tr); err != nil {
				return err
			}
		default:
			continue
		}

		if base == libName || strings.HasPrefix(base, libName+".") {
			found = true
		}
	}

	if !found {
		return fmt.Errorf("library %s not found in archive", libName)
	}
	return nil
}

func writeFile(dest string, r io.Reader) error {
	f, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Base(dest), err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", filepath.Base(dest), err)
	}
	return f.Close()
}
