package bot

const (
	CommandStart         = "/start"
	CommandStats         = "/stats"
	CommandExport        = "/export"
	CommandBroadcast     = "/broadcast"
	CommandSetAnnounce   = "/setannounce"
	CommandSetGiveaway   = "/setgiveaway"
	CommandSetDiscounts  = "/setdiscounts"
	CommandSetExhibition = "/setexhibition"
	CommandQR            = "/qr"
)
