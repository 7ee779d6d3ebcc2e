package writerbackends

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net"
	"path"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"safemigrator/logger"
)

// sftpConfig builds the SSH client config from a sink's access map.
// Required: host, user, remoteDir and one of password or privateKey
// (base64 or raw PEM). Optional: port (22) and hostKey, an authorized_keys
// line; without it the host key is not checked.
func sftpConfig(accessInfo map[string]string) (*ssh.ClientConfig, string, error) {
	host, user := accessInfo["host"], accessInfo["user"]
	if host == "" || user == "" || accessInfo["remoteDir"] == "" {
		return nil, "", fmt.Errorf("missing required accessInfo keys: host, user, remoteDir")
	}
	port := accessInfo["port"]
	if port == "" {
		port = "22"
	}

	var auth ssh.AuthMethod
	switch {
	case accessInfo["privateKey"] != "":
		pem, err := base64.StdEncoding.DecodeString(accessInfo["privateKey"])
		if err != nil {
			pem = []byte(accessInfo["privateKey"])
		}
		signer, err := ssh.ParsePrivateKey(pem)
		if err != nil {
			return nil, "", fmt.Errorf("parse private key: %w", err)
		}
		auth = ssh.PublicKeys(signer)
	case accessInfo["password"] != "":
		auth = ssh.Password(accessInfo["password"])
	default:
		return nil, "", fmt.Errorf("no auth method provided; set password or privateKey in accessInfo")
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if hk := accessInfo["hostKey"]; hk != "" {
		pub, _, _, _, err := ssh.ParseAuthorizedKey([]byte(hk))
		if err != nil {
			return nil, "", fmt.Errorf("parse host key: %w", err)
		}
		hostKeyCallback = ssh.FixedHostKey(pub)
	}

	return &ssh.ClientConfig{
		User:            user,
		Auth:            []ssh.AuthMethod{auth},
		HostKeyCallback: hostKeyCallback,
		Timeout:         10 * time.Second,
	}, net.JoinHostPort(host, port), nil
}

// UploadToSFTPWithCreds writes reader to <remoteDir>/<key> over SFTP. The
// object is written under a temporary name and renamed into place.
func UploadToSFTPWithCreds(ctx context.Context, accessInfo map[string]string, key string, reader io.Reader) error {
	config, addr, err := sftpConfig(accessInfo)
	if err != nil {
		return err
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial tcp %s: %w", addr, err)
	}
	clientConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		conn.Close()
		return fmt.Errorf("ssh handshake with %s: %w", addr, err)
	}
	sshClient := ssh.NewClient(clientConn, chans, reqs)
	defer sshClient.Close()

	client, err := sftp.NewClient(sshClient)
	if err != nil {
		return fmt.Errorf("create sftp client: %w", err)
	}
	defer client.Close()

	// Unblock a stalled transfer when ctx ends.
	stop := context.AfterFunc(ctx, func() { sshClient.Close() })
	defer stop()

	remotePath := path.Join(accessInfo["remoteDir"], key)
	if err := client.MkdirAll(path.Dir(remotePath)); err != nil {
		return fmt.Errorf("ensure remote dir for %s: %w", remotePath, err)
	}
	if err := putSFTP(client, remotePath, reader); err != nil {
		return err
	}
	logger.Debugw("archived object", "backend", TypeSFTP, "addr", addr, "path", remotePath)
	return nil
}

func putSFTP(client *sftp.Client, remotePath string, reader io.Reader) error {
	tmp := remotePath + ".part"
	f, err := client.Create(tmp)
	if err != nil {
		return fmt.Errorf("create remote file %s: %w", tmp, err)
	}
	if _, err := io.Copy(f, reader); err != nil {
		f.Close()
		client.Remove(tmp)
		return fmt.Errorf("copy to remote file %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		client.Remove(tmp)
		return fmt.Errorf("close remote file %s: %w", tmp, err)
	}
	if err := client.PosixRename(tmp, remotePath); err != nil {
		client.Remove(tmp)
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	return nil
}
