package scp

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net"
	"path/filepath"

	"github.com/suyashkumar/dicom"

	"github.com/openpacs/pacsd/internal/archive"
	"github.com/openpacs/pacsd/internal/config"
	"github.com/openpacs/pacsd/pkg/db"
	"github.com/openpacs/pacsd/pkg/dimse"
	"github.com/openpacs/pacsd/pkg/errors"
	"github.com/openpacs/pacsd/pkg/object"
	"github.com/openpacs/pacsd/pkg/pdu"
	"github.com/openpacs/pacsd/pkg/storage"
	"github.com/openpacs/pacsd/pkg/uid"
)

type sessionState int

const (
	stateNegotiating sessionState = iota
	stateOpen
	stateClosed
)

// session is the per-connection dispatch loop. All message handling happens
// on the goroutine that owns the connection, so messages are processed
// strictly in arrival order.
type session struct {
	conn    net.Conn
	cfg     *config.Config
	repo    *db.Repository
	store   *storage.Store
	archive *archive.Uploader

	state     sessionState
	callingAE string
	// contexts maps accepted presentation context ids to their negotiated
	// transfer syntax.
	contexts map[uint8]string

	cmdBuf  bytes.Buffer
	dataBuf bytes.Buffer
	// pending is the C-STORE-RQ whose data set is currently being
	// reassembled, if any.
	pending   *dimse.Command
	pendingID uint8
}

func newSession(conn net.Conn, cfg *config.Config, repo *db.Repository, store *storage.Store, uploader *archive.Uploader) *session {
	return &session{
		conn:     conn,
		cfg:      cfg,
		repo:     repo,
		store:    store,
		archive:  uploader,
		state:    stateNegotiating,
		contexts: make(map[uint8]string),
	}
}

// run drives the session from negotiation to close. Shutdown of the parent
// context abandons the connection mid-message.
func (s *session) run(ctx context.Context) {
	defer s.conn.Close()
	stop := context.AfterFunc(ctx, func() { s.conn.Close() })
	defer stop()

	if err := s.negotiate(); err != nil {
		slog.Error("negotiation_failed", "remote_addr", s.conn.RemoteAddr().String(), "error", err)
		return
	}
	s.state = stateOpen

	for s.state == stateOpen {
		p, err := pdu.Read(s.conn, s.cfg.MaxPDULength+1024)
		if err != nil {
			slog.Error("receive_failed", "calling_ae", s.callingAE, "error", err)
			s.state = stateClosed
			break
		}

		switch p.Type {
		case pdu.TypePDataTF:
			s.handlePData(ctx, p.Data)
		case pdu.TypeReleaseRQ:
			slog.Info("release_requested", "calling_ae", s.callingAE)
			if err := pdu.Write(s.conn, pdu.TypeReleaseRP, pdu.ReleaseBody()); err != nil {
				slog.Error("release_reply_failed", "calling_ae", s.callingAE, "error", err)
			}
			s.state = stateClosed
		case pdu.TypeAbort:
			if abort, err := pdu.ParseAbort(p.Data); err == nil {
				slog.Warn("association_aborted",
					"calling_ae", s.callingAE,
					"source", abort.Source,
					"reason", abort.Reason)
			} else {
				slog.Warn("association_aborted", "calling_ae", s.callingAE, "error", err)
			}
			s.state = stateClosed
		default:
			slog.Warn("unexpected_pdu_ignored", "calling_ae", s.callingAE, "pdu_type", uint8(p.Type))
		}
	}

	slog.Info("association_closed", "calling_ae", s.callingAE)
}

// negotiate reads the association request and answers with an accept PDU
// granting every proposed presentation context whose abstract syntax and at
// least one transfer syntax this receiver supports.
func (s *session) negotiate() error {
	p, err := pdu.Read(s.conn, pdu.MaxAssociateLength)
	if err != nil {
		return errors.Wrap(err, "failed to read association request")
	}
	if p.Type != pdu.TypeAssociateRQ {
		return fmt.Errorf("unexpected pdu type 0x%02x before negotiation", uint8(p.Type))
	}

	rq, err := pdu.ParseAssociateRQ(p.Data)
	if err != nil {
		return errors.Wrap(err, "malformed association request")
	}

	supported := supportedAbstractSyntaxes()
	transfer := uid.TransferSyntaxes()

	ac := &pdu.AssociateAC{
		CalledAETitle:          s.cfg.AETitle,
		CallingAETitle:         rq.CallingAETitle,
		ApplicationContext:     uid.ApplicationContext,
		MaxPDULength:           s.cfg.MaxPDULength,
		ImplementationClassUID: uid.ImplementationClassUID,
		ImplementationVersion:  uid.ImplementationVersionName,
	}

	accepted := 0
	for _, pc := range rq.PresentationContexts {
		res := pdu.PresentationContextResult{ID: pc.ID, Result: pdu.ResultAbstractSyntaxRejected}
		if supported[pc.AbstractSyntax] {
			res.Result = pdu.ResultTransferSyntaxRejected
			for _, proposed := range pc.TransferSyntaxes {
				if containsString(transfer, proposed) {
					res.Result = pdu.ResultAccept
					res.TransferSyntax = proposed
					break
				}
			}
		}
		if res.Result == pdu.ResultAccept {
			s.contexts[pc.ID] = res.TransferSyntax
			accepted++
		}
		ac.Results = append(ac.Results, res)
	}

	if err := pdu.Write(s.conn, pdu.TypeAssociateAC, ac.Encode()); err != nil {
		return errors.Wrap(err, "failed to send association accept")
	}

	s.callingAE = rq.CallingAETitle
	slog.Info("association_accepted",
		"calling_ae", s.callingAE,
		"called_ae", rq.CalledAETitle,
		"contexts_proposed", len(rq.PresentationContexts),
		"contexts_accepted", accepted)
	return nil
}

// handlePData reassembles command and data fragments. A message-level
// failure is logged and skipped; the session stays open.
func (s *session) handlePData(ctx context.Context, body []byte) {
	pdvs, err := pdu.ParsePData(body)
	if err != nil {
		slog.Error("pdata_malformed", "calling_ae", s.callingAE, "error", err)
		return
	}

	for _, v := range pdvs {
		if v.Command {
			s.cmdBuf.Write(v.Data)
			if !v.Last {
				continue
			}
			cmd, err := dimse.Decode(s.cmdBuf.Bytes())
			s.cmdBuf.Reset()
			if err != nil {
				slog.Error("command_decode_failed", "calling_ae", s.callingAE, "error", err)
				continue
			}
			s.handleCommand(v.ContextID, cmd)
		} else {
			s.dataBuf.Write(v.Data)
			if !v.Last {
				continue
			}
			data := make([]byte, s.dataBuf.Len())
			copy(data, s.dataBuf.Bytes())
			s.dataBuf.Reset()
			s.handleData(ctx, v.ContextID, data)
		}
	}
}

func (s *session) handleCommand(contextID uint8, cmd *dimse.Command) {
	switch cmd.Field {
	case dimse.CEchoRQ:
		slog.Info("echo_request", "calling_ae", s.callingAE, "message_id", cmd.MessageID)
		s.sendCommand(contextID, dimse.NewEchoRSP(cmd))
	case dimse.CStoreRQ:
		slog.Info("store_request",
			"calling_ae", s.callingAE,
			"message_id", cmd.MessageID,
			"sop_class_uid", cmd.AffectedSOPClassUID,
			"sop_instance_uid", cmd.AffectedSOPInstanceUID)
		s.pending = cmd
		s.pendingID = contextID
		if !cmd.HasDataSet() {
			slog.Warn("store_request_without_data", "calling_ae", s.callingAE)
			s.respondStore(dimse.StatusProcessingFailure)
		}
	default:
		slog.Warn("unsupported_command_ignored",
			"calling_ae", s.callingAE, "command_field", cmd.Field)
	}
}

// handleData runs the pipeline for one reassembled data set: parse, resolve
// path, write bytes, record the hierarchy, optionally enqueue the archive
// copy, then acknowledge. Every failure is contained to this object.
func (s *session) handleData(ctx context.Context, contextID uint8, data []byte) {
	transferSyntax, ok := s.contexts[contextID]
	if !ok {
		slog.Error("data_on_unaccepted_context", "calling_ae", s.callingAE, "context_id", contextID)
		s.respondStore(dimse.StatusProcessingFailure)
		return
	}

	var sopClass, sopInstance string
	if s.pending != nil {
		sopClass = s.pending.AffectedSOPClassUID
		sopInstance = s.pending.AffectedSOPInstanceUID
	}

	fileBytes := object.Part10Bytes(sopClass, sopInstance, transferSyntax, data)

	ds, err := dicom.Parse(bytes.NewReader(fileBytes), int64(len(fileBytes)), nil, dicom.SkipPixelData())
	if err != nil {
		slog.Error("dataset_parse_failed", "calling_ae", s.callingAE, "error", err)
		s.respondStore(dimse.StatusProcessingFailure)
		return
	}

	obj := object.FromDataset(ds, transferSyntax)

	path, size, err := s.store.Write(obj, fileBytes)
	if err != nil {
		slog.Error("object_write_failed",
			"calling_ae", s.callingAE, "sop_uid", obj.SOPInstanceUID, "error", err)
		s.respondStore(dimse.StatusProcessingFailure)
		return
	}

	if err := s.repo.StoreObject(ctx, obj, path, size); err != nil {
		// The file is on disk without a metadata row; accepted as a
		// user-visible inconsistency, never fatal to the session.
		slog.Error("metadata_store_failed",
			"calling_ae", s.callingAE, "sop_uid", obj.SOPInstanceUID, "path", path, "error", err)
		s.respondStore(dimse.StatusProcessingFailure)
		return
	}

	if s.archive != nil {
		if rel, err := filepath.Rel(s.store.BasePath(), path); err == nil {
			s.archive.Enqueue(path, filepath.ToSlash(rel))
		}
	}

	s.respondStore(dimse.StatusSuccess)
}

// respondStore acknowledges the pending store request, if any, and clears it.
func (s *session) respondStore(status uint16) {
	if s.pending == nil {
		return
	}
	s.sendCommand(s.pendingID, dimse.NewStoreRSP(s.pending, status))
	s.pending = nil
}

func (s *session) sendCommand(contextID uint8, cmd *dimse.Command) {
	body := pdu.EncodePData([]pdu.PDV{{
		ContextID: contextID,
		Command:   true,
		Last:      true,
		Data:      cmd.Encode(),
	}})
	if err := pdu.Write(s.conn, pdu.TypePDataTF, body); err != nil {
		slog.Error("response_send_failed",
			"calling_ae", s.callingAE, "command_field", cmd.Field, "error", err)
	}
}

func supportedAbstractSyntaxes() map[string]bool {
	supported := map[string]bool{uid.Verification: true}
	for _, sop := range uid.StorageClasses() {
		supported[sop] = true
	}
	return supported
}

func containsString(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}
