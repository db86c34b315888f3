package autoload

import (
	configx "github.com/tanpawarit/Callsight-Conversational-BI-Agent/pkg/config"
	logx "github.com/tanpawarit/Callsight-Conversational-BI-Agent/pkg/logger"
)

func init() {
	logx.Init(*configx.MustNew[logx.Config]("LOG"))
}
