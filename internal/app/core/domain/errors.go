package domain

import "errors"

var (
	// ErrInvalidAmount 金額必須為正數
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrSameAccount 來源與目的帳戶不得相同
	ErrSameAccount = errors.New("source and destination accounts must differ")

	// ErrInsufficientBalance 餘額不足
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrAccountNotFound 找不到帳戶
	ErrAccountNotFound = errors.New("account not found")

	// ErrAccountAlreadyExists 帳戶已存在
	ErrAccountAlreadyExists = errors.New("account already exists")

	// ErrTransactionNotFound 找不到交易
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrTransactionAlreadyProcessed 交易已處理 (重複回呼的預期結果，不是系統故障)
	ErrTransactionAlreadyProcessed = errors.New("transaction already processed")

	// ErrInvalidVerdict 外部回報的結果不在 completed / failed 之內
	ErrInvalidVerdict = errors.New("invalid verdict")

	// ErrDispatchFailed 結算請求送出失敗 (暫時性，交易停留在 pending 等待對帳)
	ErrDispatchFailed = errors.New("settlement dispatch failed")

	// ErrSettleConflict 結算遇到儲存層衝突 (鎖競爭、交易中止)，可整段重跑
	ErrSettleConflict = errors.New("settle conflict")

	// ErrWALWriteFailed WAL 寫入失敗
	ErrWALWriteFailed = errors.New("wal write failed")
)
