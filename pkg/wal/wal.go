package wal

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sync"
)

// FileModePrivate rw------- (只有擁有者可讀寫)，帳務資料使用
const FileModePrivate fs.FileMode = 0600

// ErrCorrupted 寫入失敗後無法把檔案截回原本長度，之後的 Write 一律拒絕
var ErrCorrupted = errors.New("wal: failed write could not be rolled back")

// file 是 WAL 需要的 *os.File 操作
type file interface {
	io.ReadWriteSeeker
	Sync() error
	Truncate(size int64) error
	Close() error
}

// record 每一行 JSON 的外層，Seq 從 1 開始連續遞增
type record struct {
	Seq  uint64          `json:"seq"`
	Data json.RawMessage `json:"data"`
}

// WAL 以 JSON Lines 格式追加寫入的 Write-Ahead Log
//
// 每次 Write 都會 fsync；ReadAll 容忍最後一行因當機而寫到一半。
type WAL struct {
	file   file
	mu     sync.Mutex
	seq    uint64
	broken error
}

// NewWAL 開啟或建立一個 WAL 檔案
// O_RDWR 讀寫模式
// O_APPEND 每次寫入時自動跳到文件末尾
// O_CREATE 如果文件不存在則建立
func NewWAL(path string) (*WAL, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_RDWR, FileModePrivate)
	if err != nil {
		return nil, fmt.Errorf("open wal %s: %w", path, err)
	}
	return &WAL{file: file}, nil
}

// Write 寫入一筆資料並刷入硬碟
//
// 寫入或 fsync 失敗時會把檔案截回寫入前的長度，回傳錯誤的資料不會在重放時出現，
// 序號也不會前進。連截斷都失敗時 WAL 進入損毀狀態，之後的 Write 回傳 ErrCorrupted。
//
// 回傳:
//
//	uint64: 這筆資料的序號
//	error: 編碼或寫入錯誤
func (w *WAL) Write(v any) (uint64, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return 0, fmt.Errorf("encode wal record: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.broken != nil {
		return 0, w.broken
	}

	rec := record{Seq: w.seq + 1, Data: data}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(rec); err != nil {
		return 0, fmt.Errorf("encode wal record: %w", err)
	}

	offset, err := w.file.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, fmt.Errorf("locate wal end: %w", err)
	}
	if _, err := w.file.Write(buf.Bytes()); err != nil {
		return 0, w.rollback(offset, fmt.Errorf("write wal record: %w", err))
	}
	if err := w.file.Sync(); err != nil {
		return 0, w.rollback(offset, fmt.Errorf("sync wal: %w", err))
	}
	w.seq = rec.Seq
	return rec.Seq, nil
}

// rollback 截掉失敗的那筆紀錄
func (w *WAL) rollback(offset int64, cause error) error {
	if err := w.file.Truncate(offset); err != nil {
		w.broken = fmt.Errorf("%w: %v (truncate: %v)", ErrCorrupted, cause, err)
		return w.broken
	}
	if err := w.file.Sync(); err != nil {
		w.broken = fmt.Errorf("%w: %v (sync after truncate: %v)", ErrCorrupted, cause, err)
		return w.broken
	}
	return cause
}

// Seq 最後一筆寫入 (或重放) 的序號
func (w *WAL) Seq() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.seq
}

// Close 關閉檔案
func (w *WAL) Close() error {
	return w.file.Close()
}

// ReadAll 依序讀取所有資料
// callback 接收每筆資料的原始 JSON，這樣可以避免一次將所有資料載入記憶體
// 讀完後 Write 會從最後一個序號接著寫
func (w *WAL) ReadAll(callback func(jsonRaw []byte) error) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	// 確保從頭讀取
	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return err
	}

	decoder := json.NewDecoder(w.file)
	var seq uint64
	var good int64
	for {
		var rec record
		if err := decoder.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			if errors.Is(err, io.ErrUnexpectedEOF) {
				// 最後一行沒寫完，截掉以免後續追加接在殘骸後面
				if err := w.file.Truncate(good); err != nil {
					return fmt.Errorf("truncate torn wal tail: %w", err)
				}
				break
			}
			return fmt.Errorf("decode wal record after seq %d: %w", seq, err)
		}
		if rec.Seq != seq+1 {
			return fmt.Errorf("wal sequence gap: want %d got %d", seq+1, rec.Seq)
		}
		if err := callback(rec.Data); err != nil {
			return fmt.Errorf("replay wal record %d: %w", rec.Seq, err)
		}
		seq = rec.Seq
		good = decoder.InputOffset()
	}
	w.seq = seq
	return nil
}
