package main

import (
	"fmt"
	"strings"

	"homeservices/chatcore/internal/models"

	"github.com/xuri/excelize/v2"
)

const exportSheet = "Messages"

var exportHeaders = []string{"Message ID", "Sent at", "Sender", "Role", "Content", "Images", "Read at"}

type historySource interface {
	GetRoomByID(roomID string) (*models.ChatRoom, error)
	GetChatHistory(roomID string, limit int) ([]models.ChatHistory, error)
}

// exportRoom writes the full history of roomID, oldest first, to path.
func exportRoom(s historySource, roomID, path string) (int, error) {
	room, err := s.GetRoomByID(roomID)
	if err != nil {
		return 0, err
	}
	history, err := s.GetChatHistory(room.RoomID, 0)
	if err != nil {
		return 0, err
	}

	f := buildWorkbook(history, room.PeerOf)
	defer f.Close()
	if err := f.SaveAs(path); err != nil {
		return 0, fmt.Errorf("save %s: %w", path, err)
	}
	return len(history), nil
}

// buildWorkbook lays history (newest first, as stored) out oldest first.
func buildWorkbook(history []models.ChatHistory, peerOf func(string) string) *excelize.File {
	f := excelize.NewFile()
	index, _ := f.NewSheet(exportSheet)
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	for i, header := range exportHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(exportSheet, cell, header)
	}
	if style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		f.SetRowStyle(exportSheet, 1, 1, style)
	}

	row := 2
	for i := len(history) - 1; i >= 0; i-- {
		h := history[i]
		var readAt string
		for _, r := range h.ReadBy {
			if r.UserID == peerOf(h.SenderID) {
				readAt = r.ReadAt.Format("02.01.2006 15:04")
			}
		}
		values := []any{
			h.ID,
			h.CreatedAt.Format("02.01.2006 15:04:05"),
			h.SenderID,
			h.SenderRole,
			h.Content,
			strings.Join(h.Images, "\n"),
			readAt,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			f.SetCellValue(exportSheet, cell, v)
		}
		row++
	}
	f.SetColWidth(exportSheet, "A", "A", 38)
	f.SetColWidth(exportSheet, "E", "E", 60)
	return f
}
