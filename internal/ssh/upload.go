// internal/ssh/upload.go

package ssh

import (
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"time"

	"commandForge/internal/apperr"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// TransferProgress reports how far an upload has got.
type TransferProgress struct {
	FileName         string
	TotalBytes       int64
	TransferredBytes int64
	StartTime        time.Time
}

// clientCarrier is implemented by transports backed by a real SSH connection.
type clientCarrier interface {
	Client() *ssh.Client
}

// UploadLog copies the session's transcript into remoteDir over SFTP on the
// session's own connection and returns the remote path.
func (s *Session) UploadLog(remoteDir string, progressChan chan<- TransferProgress) (string, error) {
	s.mu.RLock()
	state, transport := s.state, s.transport
	s.mu.RUnlock()

	if state != StateConnected {
		return "", apperr.New(apperr.ConnectionError, "session is not connected", nil)
	}
	carrier, ok := transport.(clientCarrier)
	if !ok {
		return "", apperr.New(apperr.ConnectionError, "transport does not support file transfer", nil)
	}

	localPath := s.sink.Path()
	remotePath := path.Join(remoteDir, filepath.Base(localPath))
	if err := UploadFile(carrier.Client(), localPath, remotePath, progressChan); err != nil {
		return "", err
	}
	s.log.Info().Str("remote", remotePath).Msg("session log uploaded")
	return remotePath, nil
}

// UploadFile copies localPath to remotePath, creating remote parent directories.
func UploadFile(client *ssh.Client, localPath, remotePath string, progressChan chan<- TransferProgress) error {
	sftpClient, err := sftp.NewClient(client)
	if err != nil {
		return apperr.New(apperr.ConnectionError, "failed to create SFTP client", err)
	}
	defer sftpClient.Close()

	srcFile, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open local file: %w", err)
	}
	defer srcFile.Close()

	fileInfo, err := srcFile.Stat()
	if err != nil {
		return fmt.Errorf("failed to get file info: %w", err)
	}

	if dir := path.Dir(remotePath); dir != "." && dir != "/" {
		if err := sftpClient.MkdirAll(dir); err != nil {
			return fmt.Errorf("failed to create remote directory: %w", err)
		}
	}

	dstFile, err := sftpClient.Create(remotePath)
	if err != nil {
		return fmt.Errorf("failed to create remote file: %w", err)
	}
	defer dstFile.Close()

	progress := TransferProgress{
		FileName:   filepath.Base(localPath),
		TotalBytes: fileInfo.Size(),
		StartTime:  time.Now(),
	}

	buf := make([]byte, 128*1024)
	for {
		n, err := srcFile.Read(buf)
		if n > 0 {
			if _, writeErr := dstFile.Write(buf[:n]); writeErr != nil {
				return fmt.Errorf("error writing remote file: %w", writeErr)
			}
			progress.TransferredBytes += int64(n)
			reportProgress(progressChan, progress)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("error reading local file: %w", err)
		}
	}

	reportProgress(progressChan, progress)
	return nil
}

func reportProgress(progressChan chan<- TransferProgress, progress TransferProgress) {
	if progressChan == nil {
		return
	}
	select {
	case progressChan <- progress:
	default:
	}
}
