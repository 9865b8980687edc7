package walletprocess

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

const seedWordCount = 25

// WalletIdentity describes the wallet file backing the daemon. The recovery
// seed is populated only when the wallet was created in this session and is
// returned exactly once.
type WalletIdentity struct {
	WalletFile string
	Seed       string
	Fresh      bool
}

// EnsureWalletExists makes sure a healthy wallet file exists at the
// configured path. A missing wallet is created with the fixed empty
// credential; an unhealthy one is backed up and recreated rather than
// silently used.
func (s *Supervisor) EnsureWalletExists(ctx context.Context) (*WalletIdentity, error) {
	keysFile := s.opts.WalletFile + ".keys"

	if _, err := os.Stat(keysFile); os.IsNotExist(err) {
		log.Infof("no wallet found at %s, creating a new one", s.opts.WalletFile)
		return s.createWallet(ctx)
	} else if err != nil {
		return nil, fmt.Errorf("checking wallet file: %w", err)
	}

	if err := s.validateWalletFiles(keysFile); err != nil {
		log.WithError(err).Warnf(
			"wallet at %s looks unhealthy, backing it up and recreating",
			s.opts.WalletFile,
		)
		if err := s.backupWalletFiles(keysFile); err != nil {
			return nil, err
		}
		return s.createWallet(ctx)
	}

	return &WalletIdentity{WalletFile: s.opts.WalletFile}, nil
}

// validateWalletFiles checks structural markers of wallet health: the keys
// file must be non-empty and the cache file, when present, must carry a
// plausible sync checkpoint rather than being zero bytes.
func (s *Supervisor) validateWalletFiles(keysFile string) error {
	keysInfo, err := os.Stat(keysFile)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrWalletCorrupt, err)
	}
	if keysInfo.Size() == 0 {
		return fmt.Errorf("%w: keys file is empty", ErrWalletCorrupt)
	}

	cacheInfo, err := os.Stat(s.opts.WalletFile)
	if err == nil && cacheInfo.Size() == 0 {
		return fmt.Errorf("%w: cache file holds no sync checkpoint", ErrWalletCorrupt)
	}
	return nil
}

func (s *Supervisor) backupWalletFiles(keysFile string) error {
	suffix := fmt.Sprintf(".corrupt-%d", time.Now().Unix())
	for _, file := range []string{s.opts.WalletFile, keysFile} {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := os.Rename(file, file+suffix); err != nil {
			return fmt.Errorf("backing up wallet file %s: %w", file, err)
		}
	}
	return nil
}

// createWallet runs the wallet-creation tool as a subprocess with fully
// specified arguments and every prompt answered through piped input. The
// empty credential supplied here is structurally the same one the daemon is
// later started with.
func (s *Supervisor) createWallet(ctx context.Context) (*WalletIdentity, error) {
	if _, err := exec.LookPath(s.opts.WalletCLIBinary); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrBinaryMissing, s.opts.WalletCLIBinary)
	}

	args := []string{
		"--generate-new-wallet", s.opts.WalletFile,
		"--mnemonic-language", "English",
		"--password", "",
		"--command", "version",
	}
	cmd := exec.CommandContext(ctx, s.opts.WalletCLIBinary, args...)
	// two empty lines answer any residual confirmation prompts with the
	// same empty credential passed above
	cmd.Stdin = strings.NewReader("\n\n")

	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf(
			"wallet creation failed: %w: %s", err, truncateOutput(string(output)),
		)
	}

	seed, err := parseSeed(string(output))
	if err != nil {
		return nil, err
	}

	s.mtx.Lock()
	s.fresh = true
	s.mtx.Unlock()

	log.Infof("created new wallet at %s", s.opts.WalletFile)
	return &WalletIdentity{
		WalletFile: s.opts.WalletFile,
		Seed:       seed,
		Fresh:      true,
	}, nil
}

// parseSeed extracts the recovery phrase from the creation tool output by
// collecting contiguous word-only lines until the expected count is reached.
func parseSeed(output string) (string, error) {
	words := make([]string, 0, seedWordCount)

	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if len(line) == 0 || !wordsOnly(line) {
			words = words[:0]
			continue
		}
		words = append(words, strings.Fields(line)...)
		if len(words) >= seedWordCount {
			return strings.Join(words[:seedWordCount], " "), nil
		}
	}

	return "", fmt.Errorf("recovery seed not found in wallet creation output")
}

func wordsOnly(line string) bool {
	for _, r := range line {
		if r != ' ' && (r < 'a' || r > 'z') {
			return false
		}
	}
	return true
}

func truncateOutput(output string) string {
	const max = 512
	if len(output) > max {
		return output[:max]
	}
	return output
}
