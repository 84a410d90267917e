package handlers

import (
	"github.com/finledger/bankfeed/internal/api/dto"
	"github.com/finledger/bankfeed/internal/connect"
	"github.com/finledger/bankfeed/internal/statement"
)

// toPreviewResponse converts a parsed statement preview.
func toPreviewResponse(p *statement.Preview) dto.PreviewResponse {
	resp := dto.PreviewResponse{
		Format:         p.Format,
		Count:          p.Count,
		Currency:       p.Currency,
		AccountNumber:  p.AccountNumber,
		OpeningBalance: p.OpeningBalance,
		ClosingBalance: p.ClosingBalance,
		Transactions:   make([]dto.PreviewTransaction, 0, len(p.Transactions)),
	}
	for _, t := range p.Transactions {
		resp.Transactions = append(resp.Transactions, dto.PreviewTransaction{
			Date:         t.Date.Format("2006-01-02"),
			Amount:       t.Amount,
			Currency:     t.Currency,
			Reference:    t.Reference,
			Counterparty: t.Counterparty,
		})
	}
	return resp
}

// toConnectionRequestResponse converts a pending handshake.
func toConnectionRequestResponse(req *connect.PendingRequest) dto.ConnectionRequestResponse {
	return dto.ConnectionRequestResponse{
		Token:     req.Token,
		State:     string(req.State),
		Provider:  req.Provider,
		LastError: req.LastError,
		ExpiresAt: req.ExpiresAt,
	}
}
