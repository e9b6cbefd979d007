package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"waterlog/internal/intake"
)

type entryJSON struct {
	ID        int64     `json:"id"`
	Amount    int       `json:"amount"`
	Timestamp time.Time `json:"timestamp"`
}

type todayResponse struct {
	DailyGoal            int         `json:"daily_goal"`
	TodayTotal           int         `json:"today_total"`
	CompletionPercentage float64     `json:"completion_percentage"`
	Entries              []entryJSON `json:"entries"`
}

type dayJSON struct {
	Date                 string  `json:"date"`
	Total                int     `json:"total"`
	DailyGoal            int     `json:"daily_goal"`
	CompletionPercentage float64 `json:"completion_percentage"`
}

type historyResponse struct {
	Days []dayJSON `json:"days"`
}

// Amount and DailyGoal are pointers so a missing field is a bad request while
// an explicit zero reaches the tracker and fails validation there.
type addWaterRequest struct {
	Amount *int `json:"amount" binding:"required"`
}

type goalRequest struct {
	DailyGoal *int `json:"daily_goal" binding:"required"`
}

type goalResponse struct {
	DailyGoal int `json:"daily_goal"`
}

type historyQuery struct {
	Days int `form:"days,default=7" binding:"gte=1,lte=366"`
}

func toEntryJSON(e intake.Entry) entryJSON {
	return entryJSON{ID: e.ID, Amount: e.Amount, Timestamp: e.Timestamp}
}

type handlers struct {
	svc Service
}

func (h *handlers) today(c *gin.Context) {
	p := h.svc.Progress()
	resp := todayResponse{
		DailyGoal:            p.DailyGoal,
		TodayTotal:           p.TodayTotal,
		CompletionPercentage: p.CompletionPercentage,
		Entries:              make([]entryJSON, 0, len(p.TodayEntries)),
	}
	for _, e := range p.TodayEntries {
		resp.Entries = append(resp.Entries, toEntryJSON(e))
	}
	c.JSON(http.StatusOK, resp)
}

func (h *handlers) addEntry(c *gin.Context) {
	var req addWaterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "body must be {\"amount\": <ml>}")
		return
	}
	entry, err := h.svc.AddWater(*req.Amount)
	if err != nil {
		failErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, toEntryJSON(entry))
}

func (h *handlers) resetToday(c *gin.Context) {
	n, err := h.svc.ResetToday()
	if err != nil {
		failErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": n})
}

func (h *handlers) getGoal(c *gin.Context) {
	c.JSON(http.StatusOK, goalResponse{DailyGoal: h.svc.DailyGoal()})
}

func (h *handlers) putGoal(c *gin.Context) {
	var req goalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "body must be {\"daily_goal\": <ml>}")
		return
	}
	if err := h.svc.SetDailyGoal(*req.DailyGoal); err != nil {
		failErr(c, err)
		return
	}
	c.JSON(http.StatusOK, goalResponse{DailyGoal: h.svc.DailyGoal()})
}

func (h *handlers) history(c *gin.Context) {
	var q historyQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "days must be between 1 and 366")
		return
	}
	totals := h.svc.History(q.Days)
	resp := historyResponse{Days: make([]dayJSON, 0, len(totals))}
	for _, d := range totals {
		resp.Days = append(resp.Days, dayJSON{
			Date:                 d.Date.Format(time.DateOnly),
			Total:                d.Total,
			DailyGoal:            d.DailyGoal,
			CompletionPercentage: d.CompletionPercentage,
		})
	}
	c.JSON(http.StatusOK, resp)
}
