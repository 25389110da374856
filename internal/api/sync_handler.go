package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"ContractSync/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type SyncHandler struct {
	syncService      *service.SyncService
	supplierService  *service.SupplierService
	amendmentService *service.AmendmentService
	logger           *logrus.Logger
	background       context.Context
}

// NewSyncHandler background 为后台运行使用的上下文，服务关闭时取消
func NewSyncHandler(background context.Context, syncService *service.SyncService, supplierService *service.SupplierService,
	amendmentService *service.AmendmentService, logger *logrus.Logger) *SyncHandler {
	return &SyncHandler{
		syncService:      syncService,
		supplierService:  supplierService,
		amendmentService: amendmentService,
		logger:           logger,
		background:       background,
	}
}

// RunHandler 后台启动一次同步
// @Summary 启动同步
// @Param reset query bool false "忽略断点重新开始"
// @Param months query int false "回溯月份数（默认取配置）"
// @Success 202 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /sync/run [post]
func (h *SyncHandler) RunHandler(c *gin.Context) {
	reset, _ := strconv.ParseBool(c.DefaultQuery("reset", "false"))
	months, err := strconv.Atoi(c.DefaultQuery("months", "0"))
	if err != nil || months < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "months 参数无效"})
		return
	}

	if err := h.syncService.Start(h.background, service.RunOptions{Reset: reset, Months: months}); err != nil {
		if errors.Is(err, service.ErrRunInProgress) {
			c.JSON(http.StatusConflict, gin.H{"error": "同步正在进行中"})
			return
		}
		h.logger.Errorf("启动同步失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"message": "同步已启动"})
}

// StatusHandler 当前阶段与最近一次运行摘要
// @Router /sync/status [get]
func (h *SyncHandler) StatusHandler(c *gin.Context) {
	c.JSON(http.StatusOK, h.syncService.Status())
}

// SuppliersHandler 全量提取供应商
// @Router /sync/suppliers [post]
func (h *SyncHandler) SuppliersHandler(c *gin.Context) {
	created, err := h.supplierService.ExtractAll(c.Request.Context())
	if err != nil {
		h.logger.Errorf("提取供应商失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"created": created})
}

// AmendmentsHandler 为所有尚无补充协议的合同生成合成数据
// @Router /sync/amendments [post]
func (h *SyncHandler) AmendmentsHandler(c *gin.Context) {
	created, err := h.amendmentService.CreateAll(c.Request.Context())
	if err != nil {
		h.logger.Errorf("生成补充协议失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"created": created, "synthetic": true})
}
