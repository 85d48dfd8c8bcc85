package core

import glog "github.com/goliatone/go-logger/glog"

var (
	_ ConfigProvider   = (*CfgxConfigProvider)(nil)
	_ OptionsResolver  = GoOptionsResolver{}
	_ DeliveryRecorder = (*MultiRecorder)(nil)
	_ DeliveryRecorder = DeliveryRecorderFunc(nil)

	_ Logger         = glog.Nop()
	_ LoggerProvider = glog.ProviderFromLogger(glog.Nop())
)
