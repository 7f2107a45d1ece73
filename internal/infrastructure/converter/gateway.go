package converter

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/dmkorolev/imageflow/internal/core/domain"
	"github.com/dmkorolev/imageflow/internal/core/ports"
)

const (
	defaultQuietWindow = 30 * time.Second
	defaultHardCeiling = 5 * time.Minute
)

// formats the conversion service must process; anything else is already
// web-servable and goes straight to final storage.
var conversionFormats = map[string]bool{
	".cr2":  true,
	".cr3":  true,
	".nef":  true,
	".arw":  true,
	".dng":  true,
	".raf":  true,
	".heic": true,
	".heif": true,
	".tif":  true,
	".tiff": true,
	".bmp":  true,
}

// Gateway converts one raw file into a URL of its converted output. Raw
// formats are staged to blob storage and handed to the conversion
// service by reference; formats needing no conversion are transferred
// directly to final storage. Transfers carry stall detection: a quiet
// window without progress aborts the transfer, and a hard ceiling bounds
// it regardless of progress.
type Gateway struct {
	storage ports.ObjectStorage
	client  *Client

	quietWindow time.Duration
	hardCeiling time.Duration
}

type GatewayOptions struct {
	QuietWindow time.Duration
	HardCeiling time.Duration
}

func NewGateway(storage ports.ObjectStorage, client *Client, options GatewayOptions) *Gateway {
	quiet := options.QuietWindow
	if quiet <= 0 {
		quiet = defaultQuietWindow
	}
	ceiling := options.HardCeiling
	if ceiling <= 0 {
		ceiling = defaultHardCeiling
	}
	return &Gateway{
		storage:     storage,
		client:      client,
		quietWindow: quiet,
		hardCeiling: ceiling,
	}
}

func (g *Gateway) Convert(ctx context.Context, file domain.RawFile, progress func(percent int)) (string, error) {
	ext := strings.ToLower(filepath.Ext(file.OriginalFilename))

	if !conversionFormats[ext] {
		finalKey := fmt.Sprintf("converted/%s%s", file.ID, ext)
		if err := g.transfer(ctx, file, finalKey, progress); err != nil {
			return "", err
		}
		return g.storage.PublicURL(finalKey), nil
	}

	stagedKey := fmt.Sprintf("staging/%s%s", file.ID, ext)
	if err := g.transfer(ctx, file, stagedKey, progress); err != nil {
		return "", err
	}
	outputURL, err := g.client.Convert(ctx, stagedKey, file.OriginalFilename)
	if err != nil {
		return "", fmt.Errorf("convert %q: %w", file.OriginalFilename, err)
	}
	return outputURL, nil
}

func (g *Gateway) transfer(ctx context.Context, file domain.RawFile, destKey string, progress func(percent int)) error {
	src, err := g.storage.Open(ctx, file.StoragePath)
	if err != nil {
		return fmt.Errorf("open raw object: %w", err)
	}
	defer src.Close()

	tracker := newProgressTracker(file.Size, progress)
	watchCtx, stopWatch := watchTransfer(ctx, tracker, g.quietWindow, g.hardCeiling)
	defer stopWatch()

	reader := &trackedReader{ctx: watchCtx, src: src, tracker: tracker}
	if _, err := g.storage.Save(watchCtx, destKey, reader, file.ContentType); err != nil {
		switch {
		case errors.Is(err, errTransferStalled) || errors.Is(context.Cause(watchCtx), errTransferStalled):
			return domain.WrapError(domain.ErrStalled, "transfer", errTransferStalled)
		case errors.Is(err, errTransferCeiling) || errors.Is(context.Cause(watchCtx), errTransferCeiling):
			return domain.WrapError(domain.ErrTemporary, "transfer", errTransferCeiling)
		default:
			return fmt.Errorf("transfer to %s: %w", destKey, err)
		}
	}
	if progress != nil {
		progress(100)
	}
	return nil
}
