package bot

const (
	textWelcome        = "Здравствуйте! Нажмите кнопку для действия."
	textFallback       = "Чтобы создать обращение — нажмите кнопку 'Создать обращение'."
	textChooseCategory = "Выберите категорию обращения или сразу опишите проблему текстом.\nМожно приложить фото и геолокацию."
	textEnterText      = "Введите текст обращения. Можно приложить фото или геолокацию."
	textAttachment     = "Вложение добавлено. Теперь опишите проблему текстом."
	textUrgentHint     = "⚠️ Экстренная ситуация. При угрозе жизни звоните 112."
	textWizardCanceled = "Создание обращения отменено."
	textCanceled       = "Действие отменено."
	textNoTickets      = "У вас нет обращений."
	textStaleMenu      = "Меню устарело, начните заново."
	textNeedText       = "Ожидается текстовый ответ. /cancel — отмена."

	textAdminUsage   = "Использование: /admin <код>"
	textAdminGranted = "Вы получили права администратора."
	textAdminDenied  = "Неверный код."

	textExportPrompt  = "Введите параметры выгрузки: <csv|txt> <начало> <конец>\nНапример: csv 2025-01-01 2025-01-31\n/cancel — отмена."
	textExportUsage   = "Использование: /export <csv|txt> <ГГГГ-ММ-ДД> <ГГГГ-ММ-ДД>"
	textCleanupUsage  = "Использование: /cleanup active | all | before <ГГГГ-ММ-ДД>"
	textCleanupPrompt = "Введите дату в формате ГГГГ-ММ-ДД. Будут удалены заявки, созданные раньше этой даты.\n/cancel — отмена."
	textBadDate       = "Дата должна быть в формате ГГГГ-ММ-ДД. /cancel — отмена."
	textBroadcastAsk  = "Введите текст рассылки. /cancel — отмена."
	textOpenPrompt    = "Введите номер заявки, например T20250101120000000. /cancel — отмена."
	textReplyUsage    = "Использование: /reply <номер> <текст>"
	textDialogUsage   = "Использование: /dialog <номер>"
	textOpenUsage     = "Использование: /open <номер>"
	textDeptUsage     = "Использование:\n/dept list\n/dept set <ключ> <chat_id|-> <название>\n/dept del <ключ>"
	textDialogActive  = "Диалог по этой заявке уже активен."
	textReplySent     = "Ответ отправлен заявителю."
	textNoActive      = "Активных заявок нет."
	textChooseDept    = "Выберите подразделение для заявки %s:"
	textUndelivered   = "Сообщение не доставлено, попробуйте ещё раз."

	textForbidden       = "Недостаточно прав."
	textTicketNotFound  = "Заявка не найдена."
	textDeptNotFound    = "Подразделение не найдено."
	textInvalid         = "Некорректные данные."
	textTerminal        = "Заявка уже закрыта."
	textBadTransition   = "Такой переход статуса невозможен."
	textDialogBusy      = "Диалог уже ведёт другой оператор."
	textNoDialog        = "Нет активного диалога."
	textNotDialogOwner  = "Завершить диалог может только оператор, который его начал."
	textInternalFailure = "Не удалось выполнить операцию, попробуйте позже."
)

const textHelp = `Справка:
• Создать обращение — отправить новое обращение (можно приложить фото и геолокацию)
• Мои обращения — список ваших обращений
• /cancel — отменить текущее действие
• /admin <код> — получить права администратора`

const textStaffHelp = `

Команды администратора:
/active — активные заявки
/open <номер> — карточка заявки
/reply <номер> <текст> — ответить заявителю
/dialog <номер> — начать диалог с заявителем, /stop — завершить
/stats — статистика
/export <csv|txt> <начало> <конец> — выгрузка
/cleanup active | all | before <дата> — удаление заявок
/bulkclose — закрыть все активные заявки
/broadcast <текст> — рассылка всем участникам
/dept list | set | del — справочник подразделений`
