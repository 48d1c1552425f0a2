package telegram

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"

	"github.com/gotd/td/telegram"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"

	"tgspider/internal/domain"
	"tgspider/internal/pkg/logtag"
)

// peerToken is what this facade stashes in domain.Channel.AccessToken: just
// enough to rebuild an InputPeerChannel/InputChannel later without ever
// exposing gotd/td types outside this package.
type peerToken struct {
	AccessHash int64
	DCID       int
}

func parseChannelID(id string) (int64, error) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid channel id %q: %w", id, err)
	}
	return n, nil
}

func (f *Facade) inputPeer(ch domain.Channel) (*tg.InputPeerChannel, error) {
	tok, _ := ch.AccessToken.(peerToken)
	id, err := parseChannelID(ch.ID)
	if err != nil {
		return nil, err
	}
	return &tg.InputPeerChannel{ChannelID: id, AccessHash: tok.AccessHash}, nil
}

func toChannel(c *tg.Channel) domain.Channel {
	return domain.Channel{
		ID:      strconv.FormatInt(c.ID, 10),
		Title:   c.Title,
		IsForum: c.Forum,
		AccessToken: peerToken{
			AccessHash: c.AccessHash,
		},
	}
}

// IterDialogs streams every channel/supergroup visible to the logged-in
// account, paging through MessagesGetDialogs. It is the iterator variant of
// GetChannels: used once at startup to discover channels the operator did
// not name explicitly.
func (f *Facade) IterDialogs(ctx context.Context) (<-chan domain.Channel, <-chan error) {
	out := make(chan domain.Channel)
	errc := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errc)

		offsetID := 0
		offsetPeer := tg.InputPeerClass(&tg.InputPeerEmpty{})
		offsetDate := 0

		for {
			res, err := f.primaryAPI.MessagesGetDialogs(ctx, &tg.MessagesGetDialogsRequest{
				OffsetDate: offsetDate,
				OffsetID:   offsetID,
				OffsetPeer: offsetPeer,
				Limit:      100,
			})
			if err != nil {
				errc <- fmt.Errorf("get dialogs: %w", err)
				return
			}

			var chats []tg.ChatClass
			var messages []tg.MessageClass
			switch d := res.(type) {
			case *tg.MessagesDialogs:
				chats, messages = d.Chats, d.Messages
			case *tg.MessagesDialogsSlice:
				chats, messages = d.Chats, d.Messages
			default:
				return
			}

			// Channels are read from the page's Chats list rather than matched
			// dialog by dialog against Messages, so a dialog whose message is
			// absent from Messages does not stop the walk. A page with
			// neither chats nor messages ends it.
			if len(messages) == 0 && len(chats) == 0 {
				return
			}

			for _, chat := range chats {
				c, ok := chat.(*tg.Channel)
				if !ok {
					continue
				}
				ch := toChannel(c)
				f.cacheAccessHash(ch.ID, c.AccessHash)
				select {
				case out <- ch:
				case <-ctx.Done():
					errc <- ctx.Err()
					return
				}
			}

			if len(messages) == 0 {
				return
			}

			last := messages[len(messages)-1]
			newOffsetID := last.GetID()
			if newOffsetID == offsetID {
				return
			}
			offsetID = newOffsetID
			offsetDate = int(last.(*tg.Message).Date)
			offsetPeer = &tg.InputPeerEmpty{}
		}
	}()

	return out, errc
}

// GetChannels resolves a list of configured channel IDs into domain.Channel
// values. If the batch RPC fails (a single bad ID poisons the whole
// request), it bisects the ID list and retries each half, down to
// singletons; an individually-failing channel is logged and skipped rather
// than aborting the whole resolution.
func (f *Facade) GetChannels(ctx context.Context, ids []string) ([]domain.Channel, error) {
	return f.getChannelsBisect(ctx, ids)
}

func (f *Facade) getChannelsBisect(ctx context.Context, ids []string) ([]domain.Channel, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	inputs := make([]tg.InputChannelClass, 0, len(ids))
	for _, id := range ids {
		n, err := parseChannelID(id)
		if err != nil {
			log.Printf("%s skipping channel %q: %v", logtag.Warn, id, err)
			continue
		}
		hash, _ := f.getAccessHash(id)
		inputs = append(inputs, &tg.InputChannel{ChannelID: n, AccessHash: hash})
	}
	if len(inputs) == 0 {
		return nil, nil
	}

	res, err := f.primaryAPI.ChannelsGetChannels(ctx, inputs)
	if err == nil {
		var out []domain.Channel
		for _, chat := range res.GetChats() {
			if c, ok := chat.(*tg.Channel); ok {
				ch := toChannel(c)
				f.cacheAccessHash(ch.ID, c.AccessHash)
				out = append(out, ch)
			}
		}
		return out, nil
	}

	if len(ids) == 1 {
		log.Printf("%s dropping unresolvable channel %q: %v", logtag.Warn, ids[0], err)
		return nil, nil
	}

	mid := len(ids) / 2
	left, errL := f.getChannelsBisect(ctx, ids[:mid])
	if errL != nil {
		return nil, errL
	}
	right, errR := f.getChannelsBisect(ctx, ids[mid:])
	if errR != nil {
		return nil, errR
	}
	return append(left, right...), nil
}

// GetForumTopics lists the forum topics of a channel. Non-forum channels and
// RPC failures both yield an empty list rather than an error: topic listing
// is best-effort scope-narrowing, never a hard requirement.
func (f *Facade) GetForumTopics(ctx context.Context, channel domain.Channel) ([]domain.Topic, error) {
	if !channel.IsForum {
		return nil, nil
	}

	peer, err := f.inputPeer(channel)
	if err != nil {
		return nil, nil
	}

	res, err := f.primaryAPI.MessagesGetForumTopics(ctx, &tg.MessagesGetForumTopicsRequest{
		Peer:  peer,
		Limit: 100,
	})
	if err != nil {
		log.Printf("%s get forum topics for %s: %v", logtag.Warn, channel.ID, err)
		return nil, nil
	}

	var topics []domain.Topic
	for _, t := range res.Topics {
		ft, ok := t.(*tg.ForumTopic)
		if !ok {
			continue
		}
		topics = append(topics, domain.Topic{
			ID:    strconv.Itoa(ft.ID),
			Title: ft.Title,
		})
	}
	return topics, nil
}

// GetHistory fetches one page of channel history. offsetID/addOffset/limit
// follow MessagesGetHistory's own paging semantics directly, since the
// ingestor already speaks in those terms.
func (f *Facade) GetHistory(ctx context.Context, channel domain.Channel, offsetID, addOffset, limit int) ([]domain.Message, error) {
	peer, err := f.inputPeer(channel)
	if err != nil {
		return nil, err
	}

	res, err := f.primaryAPI.MessagesGetHistory(ctx, &tg.MessagesGetHistoryRequest{
		Peer:      peer,
		OffsetID:  offsetID,
		AddOffset: addOffset,
		Limit:     limit,
	})
	if err != nil {
		return nil, fmt.Errorf("get history for %s: %w", channel.ID, err)
	}

	return toMessages(channel.ID, messagesOf(res)), nil
}

// GetReplies expands one comment thread, paged explicitly by offsetID
// rather than relying on a single oversized limit (an open-question
// resolution).
func (f *Facade) GetReplies(ctx context.Context, channel domain.Channel, msgID int, limit int) ([]domain.Message, error) {
	peer, err := f.inputPeer(channel)
	if err != nil {
		return nil, err
	}

	var out []domain.Message
	offsetID := 0
	for {
		page := limit - len(out)
		if page <= 0 || page > 100 {
			page = 100
		}

		res, err := f.primaryAPI.MessagesGetReplies(ctx, &tg.MessagesGetRepliesRequest{
			Peer:     peer,
			MsgID:    msgID,
			OffsetID: offsetID,
			Limit:    page,
		})
		if err != nil {
			return out, fmt.Errorf("get replies for %s/%d: %w", channel.ID, msgID, err)
		}

		msgs := messagesOf(res)
		if len(msgs) == 0 {
			break
		}

		for _, m := range msgs {
			dm := toMessage(channel.ID, m)
			dm.IsComment = true
			out = append(out, dm)
		}

		if len(out) >= limit {
			break
		}
		offsetID = msgs[len(msgs)-1].GetID()
	}
	return out, nil
}

func messagesOf(res tg.MessagesMessagesClass) []tg.MessageClass {
	switch m := res.(type) {
	case *tg.MessagesMessages:
		return m.Messages
	case *tg.MessagesMessagesSlice:
		return m.Messages
	case *tg.MessagesChannelMessages:
		return m.Messages
	default:
		return nil
	}
}

func toMessages(channelID string, msgs []tg.MessageClass) []domain.Message {
	out := make([]domain.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toMessage(channelID, m))
	}
	return out
}

func toMessage(channelID string, mc tg.MessageClass) domain.Message {
	m, ok := mc.(*tg.Message)
	if !ok {
		return domain.Message{ChannelID: channelID, ID: mc.GetID(), IsService: true}
	}

	dm := domain.Message{
		ChannelID: channelID,
		ID:        m.ID,
		Date:      int64(m.Date),
	}

	if gid, ok := m.GetGroupedID(); ok {
		dm.GroupedID = strconv.FormatInt(gid, 10)
	}

	if reply, ok := m.GetReplyTo(); ok {
		if h, ok := reply.(*tg.MessageReplyHeader); ok {
			if h.ForumTopic {
				if h.ReplyToTopID != 0 {
					dm.TopicID = strconv.Itoa(h.ReplyToTopID)
				} else {
					dm.TopicID = strconv.Itoa(h.ReplyToMsgID)
				}
			}
		}
	}

	dm.Media = toMedia(m.Media)
	return dm
}

func toMedia(mc tg.MessageMediaClass) domain.Media {
	switch med := mc.(type) {
	case *tg.MessageMediaPhoto:
		p, ok := med.Photo.(*tg.Photo)
		if !ok {
			return domain.Media{}
		}
		return domain.Media{Photo: toPhoto(p)}
	case *tg.MessageMediaDocument:
		d, ok := med.Document.(*tg.Document)
		if !ok {
			return domain.Media{}
		}
		return domain.Media{Document: toDocument(d)}
	default:
		return domain.Media{}
	}
}

func toPhoto(p *tg.Photo) *domain.Photo {
	sizes := make([]domain.PhotoSize, 0, len(p.Sizes))
	for _, s := range p.Sizes {
		switch sz := s.(type) {
		case *tg.PhotoSize:
			sizes = append(sizes, domain.PhotoSize{Type: sz.Type, W: sz.W, H: sz.H, Size: int64(sz.Size)})
		case *tg.PhotoSizeProgressive:
			sizes = append(sizes, domain.PhotoSize{Progressive: sz.Sizes, W: sz.W, H: sz.H})
		case *tg.PhotoCachedSize:
			sizes = append(sizes, domain.PhotoSize{Type: sz.Type, W: sz.W, H: sz.H, Size: int64(len(sz.Bytes))})
		}
	}
	return &domain.Photo{
		ID:            p.ID,
		AccessHash:    p.AccessHash,
		FileReference: p.FileReference,
		DCID:          p.DCID,
		Sizes:         sizes,
	}
}

func toDocument(d *tg.Document) *domain.Document {
	attrs := make([]domain.DocumentAttribute, 0, len(d.Attributes))
	for _, a := range d.Attributes {
		var attr domain.DocumentAttribute
		if fn, ok := a.(*tg.DocumentAttributeFilename); ok {
			attr.Filename = fn.FileName
		}
		attrs = append(attrs, attr)
	}
	return &domain.Document{
		ID:            d.ID,
		AccessHash:    d.AccessHash,
		FileReference: d.FileReference,
		DCID:          d.DCID,
		Size:          d.Size,
		MimeType:      d.MimeType,
		Attributes:    attrs,
	}
}

func inputFileLocation(media domain.Media) (tg.InputFileLocationClass, int, error) {
	switch {
	case media.Photo != nil:
		thumb := domain.ThumbSizeSelector(media.Photo.Sizes)
		return &tg.InputPhotoFileLocation{
			ID:            media.Photo.ID,
			AccessHash:    media.Photo.AccessHash,
			FileReference: media.Photo.FileReference,
			ThumbSize:     thumb,
		}, media.Photo.DCID, nil
	case media.Document != nil:
		return &tg.InputDocumentFileLocation{
			ID:            media.Document.ID,
			AccessHash:    media.Document.AccessHash,
			FileReference: media.Document.FileReference,
		}, media.Document.DCID, nil
	default:
		return nil, 0, errors.New("media has no downloadable payload")
	}
}

// GetFile performs a single-shot whole-file download by looping raw chunk
// reads sequentially on the primary sender. It backs the downloader's
// fallback path for files too small to justify chunk fan-out.
func (f *Facade) GetFile(ctx context.Context, media domain.Media) ([]byte, error) {
	loc, _, err := inputFileLocation(media)
	if err != nil {
		return nil, err
	}

	const partSize = 512 * 1024
	var out []byte
	offset := int64(0)
	for {
		res, err := f.primaryAPI.UploadGetFile(ctx, &tg.UploadGetFileRequest{
			Location: loc,
			Offset:   offset,
			Limit:    partSize,
		})
		if err != nil {
			if dc, ok := classifyMigrate(err); ok {
				sender, serr := f.SenderFor(ctx, dc)
				if serr != nil {
					return nil, serr
				}
				chunk, gerr := sender.GetFile(ctx, media, offset, partSize)
				if gerr != nil {
					return nil, gerr
				}
				out = append(out, chunk...)
				if int64(len(chunk)) < partSize {
					return out, nil
				}
				offset += int64(len(chunk))
				continue
			}
			return nil, fmt.Errorf("download file: %w", err)
		}

		uf, ok := res.(*tg.UploadFile)
		if !ok {
			return nil, fmt.Errorf("unexpected upload.file variant %T", res)
		}
		out = append(out, uf.Bytes...)
		if int64(len(uf.Bytes)) < partSize {
			return out, nil
		}
		offset += int64(len(uf.Bytes))
	}
}

// classifyMigrate inspects an RPC error for the FILE_MIGRATE_<dc> fault
// grounded on gotd/td's own tgerr classification helper.
func classifyMigrate(err error) (int, bool) {
	if rpcErr, ok := tgerr.As(err); ok && rpcErr.IsOneOf("FILE_MIGRATE") {
		return rpcErr.Argument, true
	}
	return 0, false
}

// SenderFor returns a Sender bound to the given data center, dialing and
// authorizing a secondary client the first time that DC is needed. The
// pool is a plain mutex-guarded map: a live connection handle cannot be
// gob-encoded into freecache.
func (f *Facade) SenderFor(ctx context.Context, dcID int) (domain.Sender, error) {
	f.mu.RLock()
	api, ok := f.dcAPIs[dcID]
	f.mu.RUnlock()
	if ok {
		return &senderImpl{api: api}, nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if api, ok := f.dcAPIs[dcID]; ok {
		return &senderImpl{api: api}, nil
	}

	api, client, err := f.dialDC(ctx, dcID)
	if err != nil {
		return nil, fmt.Errorf("dial dc %d: %w", dcID, err)
	}
	f.dcAPIs[dcID] = api
	f.dcClients[dcID] = client
	return &senderImpl{api: api}, nil
}

// dialDC connects a fresh client pinned to dcID and imports the primary
// connection's authorization into it, the standard gotd/td cross-DC
// pattern for media living on a data center other than the session's home
// DC.
func (f *Facade) dialDC(ctx context.Context, dcID int) (*tg.Client, *telegram.Client, error) {
	exported, err := f.primaryAPI.AuthExportAuthorization(ctx, &tg.AuthExportAuthorizationRequest{DCID: dcID})
	if err != nil {
		return nil, nil, fmt.Errorf("export authorization: %w", err)
	}

	client := telegram.NewClient(f.appID, f.appHash, telegram.Options{
		DC: dcID,
	})

	ready := make(chan error, 1)
	var api *tg.Client
	go func() {
		err := client.Run(ctx, func(ctx context.Context) error {
			api = client.API()
			_, err := api.AuthImportAuthorization(ctx, &tg.AuthImportAuthorizationRequest{
				ID:    exported.ID,
				Bytes: exported.Bytes,
			})
			if err != nil {
				return fmt.Errorf("import authorization: %w", err)
			}
			select {
			case ready <- nil:
			default:
			}
			<-ctx.Done()
			return ctx.Err()
		})
		if err != nil {
			select {
			case ready <- err:
			default:
			}
		}
	}()

	select {
	case err := <-ready:
		if err != nil {
			return nil, nil, err
		}
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}

	log.Printf("%s connected secondary client to dc %d", logtag.Info, dcID)
	return api, client, nil
}

type senderImpl struct {
	api *tg.Client
}

// GetFile performs a single-chunk raw read on this DC's connection,
// using the raw upload.getFile RPC directly rather than a high-level
// downloader helper, since chunk fan-out needs per-chunk control.
func (s *senderImpl) GetFile(ctx context.Context, media domain.Media, offset, limit int64) ([]byte, error) {
	loc, _, err := inputFileLocation(media)
	if err != nil {
		return nil, err
	}

	res, err := s.api.UploadGetFile(ctx, &tg.UploadGetFileRequest{
		Location: loc,
		Offset:   offset,
		Limit:    int(limit),
	})
	if err != nil {
		if dc, ok := classifyMigrate(err); ok {
			return nil, &domain.FileMigrateError{NewDC: dc}
		}
		return nil, fmt.Errorf("get file chunk: %w", err)
	}

	f, ok := res.(*tg.UploadFile)
	if !ok {
		return nil, fmt.Errorf("unexpected upload.file variant %T", res)
	}
	return f.Bytes, nil
}
